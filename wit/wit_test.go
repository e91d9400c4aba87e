package wit_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ipvm-wg/homestar/ipld"
	"github.com/ipvm-wg/homestar/wit"
)

func TestRoundTripPrimitives(t *testing.T) {
	cases := []struct {
		name string
		typ  wit.Type
		v    ipld.Value
	}{
		{"bool", wit.Bool(), ipld.Bool(true)},
		{"u8", wit.U8(), ipld.Int(255)},
		{"s8", wit.S8(), ipld.Int(-128)},
		{"u64", wit.U64(), ipld.Int(1)},
		{"float64", wit.Float64(), ipld.Float(3.5)},
		{"char", wit.Char(), ipld.String("z")},
		{"string", wit.String(), ipld.String("hello")},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			wv, err := wit.ToWIT(c.typ, c.v)
			require.NoError(t, err)
			back, err := wit.FromWIT(c.typ, wv)
			require.NoError(t, err)
			require.True(t, c.v.Equal(back))
		})
	}
}

func TestIntegerOutOfRangeIsRangeOverflow(t *testing.T) {
	_, err := wit.ToWIT(wit.U8(), ipld.Int(256))
	require.Error(t, err)
	var werr *wit.Error
	require.ErrorAs(t, err, &werr)
	require.Equal(t, wit.RangeOverflow, werr.Kind)
}

func TestFloatAcceptsInteger(t *testing.T) {
	wv, err := wit.ToWIT(wit.Float64(), ipld.Int(7))
	require.NoError(t, err)
	f, ok := wv.Float64()
	require.True(t, ok)
	require.Equal(t, 7.0, f)
}

func TestStringAcceptsNullAndLink(t *testing.T) {
	wv, err := wit.ToWIT(wit.String(), ipld.Null())
	require.NoError(t, err)
	s, _ := wv.String()
	require.Equal(t, "null", s)

	c, err := ipld.ComputeCID(ipld.String("x"))
	require.NoError(t, err)
	wv, err = wit.ToWIT(wit.String(), ipld.Link(c))
	require.NoError(t, err)
	s, _ = wv.String()
	require.Equal(t, c.String(), s)
}

func TestListU8FromBytesAndIntList(t *testing.T) {
	target := wit.List(wit.U8())

	wv, err := wit.ToWIT(target, ipld.Bytes([]byte{1, 2, 3}))
	require.NoError(t, err)
	elems, ok := wv.List()
	require.True(t, ok)
	require.Len(t, elems, 3)

	back, err := wit.FromWIT(target, wv)
	require.NoError(t, err)
	b, ok := back.AsBytes()
	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3}, b)

	wv2, err := wit.ToWIT(target, ipld.List(ipld.Int(9), ipld.Int(8)))
	require.NoError(t, err)
	elems2, _ := wv2.List()
	require.Len(t, elems2, 2)
}

func TestTupleArityMismatch(t *testing.T) {
	target := wit.Tuple(wit.U8(), wit.String())
	_, err := wit.ToWIT(target, ipld.List(ipld.Int(1)))
	require.Error(t, err)
	var werr *wit.Error
	require.ErrorAs(t, err, &werr)
	require.Equal(t, wit.ArityMismatch, werr.Kind)
}

func TestRecordMissingFieldFails(t *testing.T) {
	target := wit.Record(wit.Field{Name: "x", Type: wit.U32()}, wit.Field{Name: "y", Type: wit.U32()})
	_, err := wit.ToWIT(target, ipld.Map(map[string]ipld.Value{"x": ipld.Int(1)}))
	require.Error(t, err)
}

// TestVariantDispatch mirrors §8 scenario 5: WIT `variant filter { all,
// none, some(list<string>) }`.
func TestVariantDispatch(t *testing.T) {
	filterType := wit.Variant(
		wit.CaseNoPayload("all"),
		wit.CaseNoPayload("none"),
		wit.CaseWith("some", wit.List(wit.String())),
	)

	someInput := ipld.Map(map[string]ipld.Value{
		"some": ipld.List(ipld.String("a"), ipld.String("b"), ipld.String("c")),
	})
	wv, err := wit.ToWIT(filterType, someInput)
	require.NoError(t, err)
	name, payload, ok := wv.Variant()
	require.True(t, ok)
	require.Equal(t, "some", name)
	require.NotNil(t, payload)
	list, _ := payload.List()
	require.Len(t, list, 3)

	allInput := ipld.Map(map[string]ipld.Value{"all": ipld.Null()})
	wv2, err := wit.ToWIT(filterType, allInput)
	require.NoError(t, err)
	name2, payload2, ok2 := wv2.Variant()
	require.True(t, ok2)
	require.Equal(t, "all", name2)
	require.Nil(t, payload2)
}

func TestVariantUnknownCase(t *testing.T) {
	filterType := wit.Variant(wit.CaseNoPayload("all"), wit.CaseNoPayload("none"))
	_, err := wit.ToWIT(filterType, ipld.Map(map[string]ipld.Value{"bogus": ipld.Null()}))
	require.Error(t, err)
	var werr *wit.Error
	require.ErrorAs(t, err, &werr)
	require.Equal(t, wit.UnknownVariantCase, werr.Kind)
}

func TestOptionRoundTrip(t *testing.T) {
	target := wit.Option(wit.U32())

	none, err := wit.ToWIT(target, ipld.Null())
	require.NoError(t, err)
	opt, _ := none.Option()
	require.Nil(t, opt)

	some, err := wit.ToWIT(target, ipld.Int(42))
	require.NoError(t, err)
	opt2, _ := some.Option()
	require.NotNil(t, opt2)
	back, err := wit.FromWIT(target, some)
	require.NoError(t, err)
	n, _ := back.AsInt()
	require.EqualValues(t, 42, n.Int64())
}

func TestResultDisambiguation(t *testing.T) {
	target := wit.Result(typePtr(wit.U32()), typePtr(wit.String()))

	ok, err := wit.ToWIT(target, ipld.List(ipld.Int(7), ipld.Null()))
	require.NoError(t, err)
	isOK, val, _ := ok.Result()
	require.True(t, isOK)
	require.NotNil(t, val)

	errResult, err := wit.ToWIT(target, ipld.List(ipld.Null(), ipld.String("boom")))
	require.NoError(t, err)
	isOK2, val2, _ := errResult.Result()
	require.False(t, isOK2)
	require.NotNil(t, val2)

	_, err = wit.ToWIT(target, ipld.List(ipld.Null(), ipld.Null()))
	require.Error(t, err)
	var werr *wit.Error
	require.ErrorAs(t, err, &werr)
	require.Equal(t, wit.AmbiguousResult, werr.Kind)
}

func TestResultUnitSideRoundTrip(t *testing.T) {
	target := wit.Result(nil, typePtr(wit.String()))

	okUnit := wit.VOk(nil)
	iv, err := wit.FromWIT(target, okUnit)
	require.NoError(t, err)
	list, ok := iv.AsList()
	require.True(t, ok)
	require.Len(t, list, 2)
	n, isInt := list[0].AsInt()
	require.True(t, isInt)
	require.EqualValues(t, 1, n.Int64())
	require.True(t, list[1].IsNull())

	back, err := wit.ToWIT(target, iv)
	require.NoError(t, err)
	isOK, val, _ := back.Result()
	require.True(t, isOK)
	require.Nil(t, val)
}

func typePtr(t wit.Type) *wit.Type { return &t }
