package invocation_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ipvm-wg/homestar/invocation"
	"github.com/ipvm-wg/homestar/ipld"
)

func mustResource(t *testing.T, raw string) invocation.Resource {
	t.Helper()
	r, err := invocation.ParseResource(raw)
	require.NoError(t, err)
	return r
}

func TestInstructionCIDStableAcrossRoundTrip(t *testing.T) {
	resource := mustResource(t, "ipfs://bafybeidbyqpmztqkeot33lz4ev2ftjhqrnbh67go56tlgbf7qmy5xyzvg4")
	in, err := invocation.NewInstruction(resource, "increment", []invocation.Argument{
		invocation.ArgLiteral(ipld.Int(1)),
	}, nil)
	require.NoError(t, err)

	c1, err := in.CID()
	require.NoError(t, err)

	back, err := invocation.InstructionFromIPLD(in.ToIPLD())
	require.NoError(t, err)
	c2, err := back.CID()
	require.NoError(t, err)

	require.True(t, c1.Equals(c2))
	require.True(t, in.Pure())
}

func TestInstructionWithNonceIsNotPure(t *testing.T) {
	resource := mustResource(t, "https://example.com/fn.wasm")
	in, err := invocation.NewInstruction(resource, "f", nil, make([]byte, 12))
	require.NoError(t, err)
	require.False(t, in.Pure())
}

func TestNormalizeNonceRejectsBadLength(t *testing.T) {
	_, err := invocation.NormalizeNonce([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestNormalizeNonceAcceptsBase32HexLower(t *testing.T) {
	encoded := invocation.EncodeNonce(make([]byte, 16))
	b, err := invocation.NormalizeNonce(encoded)
	require.NoError(t, err)
	require.Len(t, b, 16)
}

func TestArgumentAwaitRoundTrip(t *testing.T) {
	seedCID, err := ipld.ComputeCID(ipld.String("seed"))
	require.NoError(t, err)
	ptr := invocation.NewPointer(seedCID)

	arg := invocation.ArgAwait(invocation.AwaitOK, ptr)
	back, err := invocation.ArgumentFromIPLD(arg.ToIPLD())
	require.NoError(t, err)

	await, ok := back.Await()
	require.True(t, ok)
	require.Equal(t, invocation.AwaitOK, await.Selector)
	require.True(t, await.Pointer.Target.Equals(seedCID))
}

func TestReceiptCIDDiffersByIssuer(t *testing.T) {
	seedCID, err := ipld.ComputeCID(ipld.String("seed"))
	require.NoError(t, err)
	ran := invocation.NewPointer(seedCID)

	issuerA := invocation.IssuerDID("did:key:zA")
	issuerB := invocation.IssuerDID("did:key:zB")

	rA := invocation.Receipt{Ran: ran, Out: invocation.Ok(ipld.Int(1)), Issuer: &issuerA}
	rB := invocation.Receipt{Ran: ran, Out: invocation.Ok(ipld.Int(1)), Issuer: &issuerB}

	cA, err := rA.CID()
	require.NoError(t, err)
	cB, err := rB.CID()
	require.NoError(t, err)

	require.False(t, cA.Equals(cB), "receipts from distinct issuers must have distinct CIDs")
}

func TestOutputBranches(t *testing.T) {
	errOut := invocation.Err(ipld.String("boom"))
	require.True(t, errOut.IsError())

	back, err := invocation.OutputFromIPLD(errOut.ToIPLD())
	require.NoError(t, err)
	require.Equal(t, invocation.OutError, back.Tag)
	s, _ := back.Value.AsString()
	require.Equal(t, "boom", s)
}
