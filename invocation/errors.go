package invocation

import "fmt"

func errNotAMap(field string) error {
	return fmt.Errorf("invocation: %q must be a map", field)
}

func errWrongType(field, want string) error {
	return fmt.Errorf("invocation: %q must be a(n) %s", field, want)
}
