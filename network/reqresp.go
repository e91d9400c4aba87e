package network

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/rs/zerolog"

	"github.com/ipvm-wg/homestar/invocation"
	"github.com/ipvm-wg/homestar/ipld"
	"github.com/ipvm-wg/homestar/store"
)

// fetchRequest/fetchResponse are the request/response protocol's own wire
// envelope, framed with fxamacker/cbor and tagged with a correlation ID
// distinct from any content CID, so a single log line ties a request to
// its response without depending on stream ordering. The receipt payload
// itself stays canonical DAG-CBOR, since a receipt's CID must round-trip.
type fetchRequest struct {
	RequestID      uuid.UUID `cbor:"request_id"`
	InstructionCID string    `cbor:"instruction_cid"`
}

type fetchResponse struct {
	RequestID uuid.UUID `cbor:"request_id"`
	Found     bool      `cbor:"found"`
	Receipt   []byte    `cbor:"receipt,omitempty"`
}

// receiptFetchProtocol is the direct request/response fallback for a
// receipt cache miss that also missed DHT quorum: ask a specific
// connected peer for the receipt by instruction CID (§4.4).
const receiptFetchProtocol = protocol.ID("/homestar/receipt-fetch/1.0.0")

const maxReqRespMessage = 16 << 20 // 16 MiB, generous for a single receipt

// reqResp serves and issues direct receipt-fetch requests.
type reqResp struct {
	log   zerolog.Logger
	h     host.Host
	local *store.ReceiptCache
}

func newReqResp(log zerolog.Logger, h host.Host, local *store.ReceiptCache) *reqResp {
	rr := &reqResp{log: log, h: h, local: local}
	h.SetStreamHandler(receiptFetchProtocol, rr.handle)
	return rr
}

// handle answers an incoming request.
func (rr *reqResp) handle(s network.Stream) {
	defer s.Close()
	raw, err := io.ReadAll(io.LimitReader(s, maxReqRespMessage))
	if err != nil {
		rr.log.Warn().Err(err).Msg("network: read receipt-fetch request")
		return
	}
	var req fetchRequest
	if err := cbor.Unmarshal(raw, &req); err != nil {
		rr.log.Warn().Err(err).Msg("network: malformed receipt-fetch request")
		return
	}
	instructionCID, err := cid.Decode(req.InstructionCID)
	if err != nil {
		rr.log.Warn().Err(err).Str("request_id", req.RequestID.String()).Msg("network: malformed instruction cid in receipt-fetch request")
		return
	}

	resp := fetchResponse{RequestID: req.RequestID}
	if receipt, ok := rr.local.Lookup(instructionCID); ok {
		if encoded, err := ipld.EncodeDAGCBOR(receipt.ToIPLD()); err == nil {
			resp.Found = true
			resp.Receipt = encoded
		}
	}

	out, err := cbor.Marshal(resp)
	if err != nil {
		rr.log.Warn().Err(err).Str("request_id", req.RequestID.String()).Msg("network: encode receipt-fetch response")
		return
	}
	if _, err := s.Write(out); err != nil {
		rr.log.Warn().Err(err).Str("request_id", req.RequestID.String()).Msg("network: write receipt-fetch response")
	}
}

// Fetch asks peerID directly for the receipt memoizing instructionCID.
func (rr *reqResp) Fetch(ctx context.Context, peerID peer.ID, instructionCID cid.Cid) (invocation.Receipt, bool, error) {
	s, err := rr.h.NewStream(ctx, peerID, receiptFetchProtocol)
	if err != nil {
		return invocation.Receipt{}, false, fmt.Errorf("network: open receipt-fetch stream to %s: %w", peerID, err)
	}
	defer s.Close()

	req := fetchRequest{RequestID: uuid.New(), InstructionCID: instructionCID.String()}
	raw, err := cbor.Marshal(req)
	if err != nil {
		return invocation.Receipt{}, false, fmt.Errorf("network: encode receipt-fetch request: %w", err)
	}
	if _, err := s.Write(raw); err != nil {
		return invocation.Receipt{}, false, fmt.Errorf("network: send receipt-fetch request: %w", err)
	}
	if err := s.CloseWrite(); err != nil {
		return invocation.Receipt{}, false, fmt.Errorf("network: close receipt-fetch write side: %w", err)
	}

	respRaw, err := io.ReadAll(io.LimitReader(bufio.NewReader(s), maxReqRespMessage))
	if err != nil {
		return invocation.Receipt{}, false, fmt.Errorf("network: read receipt-fetch response: %w", err)
	}
	var resp fetchResponse
	if err := cbor.Unmarshal(respRaw, &resp); err != nil {
		return invocation.Receipt{}, false, fmt.Errorf("network: decode receipt-fetch response: %w", err)
	}
	rr.log.Debug().Str("request_id", req.RequestID.String()).Bool("found", resp.Found).Msg("network: receipt-fetch response")
	if !resp.Found {
		return invocation.Receipt{}, false, nil
	}
	v, err := ipld.DecodeDAGCBOR(resp.Receipt)
	if err != nil {
		return invocation.Receipt{}, false, fmt.Errorf("network: decode fetched receipt: %w", err)
	}
	receipt, err := invocation.ReceiptFromIPLD(v)
	if err != nil {
		return invocation.Receipt{}, false, fmt.Errorf("network: parse fetched receipt: %w", err)
	}
	return receipt, true, nil
}
