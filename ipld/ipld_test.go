package ipld_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ipvm-wg/homestar/ipld"
)

func roundTripCBOR(t *testing.T, v ipld.Value) ipld.Value {
	t.Helper()
	b, err := ipld.EncodeDAGCBOR(v)
	require.NoError(t, err)
	got, err := ipld.DecodeDAGCBOR(b)
	require.NoError(t, err)
	return got
}

func TestDAGCBORRoundTrip(t *testing.T) {
	link, err := ipld.ComputeCID(ipld.String("seed"))
	require.NoError(t, err)

	cases := []ipld.Value{
		ipld.Null(),
		ipld.Bool(true),
		ipld.Bool(false),
		ipld.Int(0),
		ipld.Int(-1),
		ipld.Int(42),
		ipld.IntBig(new(big.Int).Lsh(big.NewInt(1), 100)),
		ipld.IntBig(new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 100))),
		ipld.Float(1.0),
		ipld.Float(-3.5),
		ipld.String("hello, homestar"),
		ipld.Bytes([]byte{0x01, 0x02, 0x03}),
		ipld.List(ipld.Int(1), ipld.String("two"), ipld.Bool(true)),
		ipld.Map(map[string]ipld.Value{
			"a": ipld.Int(1),
			"b": ipld.String("two"),
			"z": ipld.Bool(false),
		}),
		ipld.Link(link),
	}

	for _, v := range cases {
		got := roundTripCBOR(t, v)
		require.True(t, v.Equal(got), "round trip mismatch for %v -> %v", v, got)
	}
}

func TestCIDStable(t *testing.T) {
	v := ipld.Map(map[string]ipld.Value{
		"resource": ipld.String("ipfs://bafyabc"),
		"args":     ipld.List(ipld.Int(1), ipld.Int(2)),
	})

	c1, err := ipld.ComputeCID(v)
	require.NoError(t, err)

	b, err := ipld.EncodeDAGCBOR(v)
	require.NoError(t, err)
	back, err := ipld.DecodeDAGCBOR(b)
	require.NoError(t, err)

	c2, err := ipld.ComputeCID(back)
	require.NoError(t, err)
	require.True(t, c1.Equals(c2))
}

func TestMapKeyOrderingIsCanonical(t *testing.T) {
	// Two maps built with different insertion orders must encode identically.
	m1 := ipld.Map(map[string]ipld.Value{"aa": ipld.Int(1), "b": ipld.Int(2), "ccc": ipld.Int(3)})
	m2 := ipld.Map(map[string]ipld.Value{"ccc": ipld.Int(3), "b": ipld.Int(2), "aa": ipld.Int(1)})

	b1, err := ipld.EncodeDAGCBOR(m1)
	require.NoError(t, err)
	b2, err := ipld.EncodeDAGCBOR(m2)
	require.NoError(t, err)
	require.Equal(t, b1, b2)
}

func TestDAGJSONRoundTrip(t *testing.T) {
	link, err := ipld.ComputeCID(ipld.String("seed"))
	require.NoError(t, err)

	v := ipld.Map(map[string]ipld.Value{
		"n":     ipld.Int(7),
		"s":     ipld.String("x"),
		"bytes": ipld.Bytes([]byte{0xde, 0xad}),
		"link":  ipld.Link(link),
		"nil":   ipld.Null(),
	})

	b, err := ipld.EncodeDAGJSON(v)
	require.NoError(t, err)
	got, err := ipld.DecodeDAGJSON(b)
	require.NoError(t, err)
	require.True(t, v.Equal(got))
}

func TestDAGJSONLinkEncoding(t *testing.T) {
	link, err := ipld.ComputeCID(ipld.String("x"))
	require.NoError(t, err)
	b, err := ipld.EncodeDAGJSON(ipld.Link(link))
	require.NoError(t, err)
	require.Contains(t, string(b), `"/"`)
	require.Contains(t, string(b), link.String())
}

func TestDAGJSONByteEncodingBase64(t *testing.T) {
	got, err := ipld.DecodeDAGJSON([]byte(`{"/":{"bytes":"AQIDBA=="}}`))
	require.NoError(t, err)
	b, ok := got.AsBytes()
	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3, 4}, b)
}
