package main

import (
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/ipvm-wg/homestar/runner"
)

func decodeSeed(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid identity seed hex: %w", err)
	}
	return b, nil
}

// serveWebSocket runs the debug event WebSocket listener until the process
// exits; it is a development aid (§6), never the RPC surface itself.
func serveWebSocket(addr string, broadcaster *runner.WebSocketBroadcaster) {
	log.Info().Str("addr", addr).Msg("serving debug event websocket")
	if err := http.ListenAndServe(addr, broadcaster); err != nil {
		log.Error().Err(err).Msg("debug event websocket server stopped")
	}
}
