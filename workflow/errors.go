package workflow

import (
	"errors"
	"fmt"
)

var errNotMap = errors.New("workflow: expected a map")

func errBadField(field string) error {
	return fmt.Errorf("workflow: missing or malformed field %q", field)
}
