package network

import (
	"fmt"

	"github.com/ipvm-wg/homestar/ipld"
)

// recordValidator accepts any well-formed DAG-CBOR value under the
// "homestar" DHT namespace. Records are keyed by instruction CID or
// workflow CID, not by the hash of the stored value, and Validate does not
// check that a value belongs to its key: any value that decodes as
// DAG-CBOR is accepted. Select returns the first candidate that decodes.
type recordValidator struct{}

func (recordValidator) Validate(key string, value []byte) error {
	if _, err := ipld.DecodeDAGCBOR(value); err != nil {
		return fmt.Errorf("network: invalid dht record for %s: %w", key, err)
	}
	return nil
}

func (recordValidator) Select(key string, values [][]byte) (int, error) {
	for i, v := range values {
		if _, err := ipld.DecodeDAGCBOR(v); err == nil {
			return i, nil
		}
	}
	return 0, fmt.Errorf("network: no valid dht record among %d candidates for %s", len(values), key)
}
