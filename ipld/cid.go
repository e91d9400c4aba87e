package ipld

import (
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// DagCBORCodec is the multicodec code for DAG-CBOR-encoded blocks.
const DagCBORCodec = cid.DagCBOR

// ComputeCID hashes the canonical DAG-CBOR encoding of v with SHA2-256 and
// wraps it in a CIDv1, giving the value's content identifier. Equality of
// CIDs implies equality of values (§3 invariant), since encode is
// deterministic and the hash is collision-resistant.
func ComputeCID(v Value) (cid.Cid, error) {
	b, err := EncodeDAGCBOR(v)
	if err != nil {
		return cid.Undef, err
	}
	sum, err := mh.Sum(b, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(uint64(DagCBORCodec), sum), nil
}
