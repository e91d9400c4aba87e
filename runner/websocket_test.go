package runner_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ipvm-wg/homestar/runner"
)

func TestWebSocketBroadcasterFansOutReceiptNotifications(t *testing.T) {
	r := newTestRunner(t)
	broadcaster := runner.NewWebSocketBroadcaster(zerolog.Nop(), r)

	server := httptest.NewServer(broadcaster)
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// give the broadcaster a moment to register the client before publishing.
	time.Sleep(50 * time.Millisecond)

	_, _, err = r.Run(context.Background(), oneTaskWorkflow(t))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	sawReceiptNotified := false
	for i := 0; i < 10; i++ {
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		if strings.Contains(string(payload), `"receipt_notified"`) {
			sawReceiptNotified = true
			break
		}
	}
	require.True(t, sawReceiptNotified)
}
