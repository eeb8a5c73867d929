package websocket

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T, config *HubConfig) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(config, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	return websocket.DefaultDialer.Dial(url, header)
}

func basicAuth(user, pass string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+pass)))
	return h
}

func TestHubBroadcastsDetectionSummary(t *testing.T) {
	countCh := make(chan int, 8)
	hub, server := startHub(t, &HubConfig{
		BroadcastDetections: true,
		OnClientCount:       func(n int) { countCh <- n },
	})

	conn, _, err := dial(t, server, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, <-countCh)

	hub.BroadcastDetection(DetectionEvent{
		RequestID:     "req-1",
		Operation:     "mask",
		Counts:        map[string]int{"email": 1},
		TotalFindings: 1,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event struct {
		Type      EventType      `json:"type"`
		RequestID string         `json:"request_id"`
		Data      DetectionEvent `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&event))

	assert.Equal(t, EventTypeDetection, event.Type)
	assert.Equal(t, "req-1", event.RequestID)
	assert.Equal(t, 1, event.Data.Counts["email"])
	assert.Equal(t, 1, event.Data.TotalFindings)
}

func TestHubSkipsDisabledEventTypes(t *testing.T) {
	hub, server := startHub(t, &HubConfig{BroadcastDetections: false, BroadcastSystem: true})

	conn, _, err := dial(t, server, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.BroadcastDetection(DetectionEvent{RequestID: "dropped"})
	hub.BroadcastSystemStatus("reloaded", "engine configuration updated")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, EventTypeSystemStatus, event.Type)
}

func TestHubRequiresBasicAuth(t *testing.T) {
	_, server := startHub(t, &HubConfig{Username: "admin", Password: "s3cret"})

	_, resp, err := dial(t, server, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = dial(t, server, basicAuth("admin", "wrong"))
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := dial(t, server, basicAuth("admin", "s3cret"))
	require.NoError(t, err)
	conn.Close()
}

func TestHubPingPong(t *testing.T) {
	hub, server := startHub(t, &HubConfig{})

	conn, _, err := dial(t, server, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "ping"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, EventTypePong, event.Type)
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub, server := startHub(t, &HubConfig{})

	conn, _, err := dial(t, server, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), hub.GetStats().TotalConnections)
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	assert.Equal(t, "10.0.0.1", getClientIP(r))
}
