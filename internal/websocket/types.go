package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeDetection summarizes the PII found by one request
	EventTypeDetection EventType = "pii_detection"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// DetectionEvent carries per-type counts for one request. Matched values and
// masked text are never broadcast.
type DetectionEvent struct {
	RequestID     string         `json:"request_id"`
	Operation     string         `json:"operation"`
	Counts        map[string]int `json:"counts"`
	TotalFindings int            `json:"total_findings"`
	TextLength    int            `json:"text_length"`
	ProcessingMS  float64        `json:"processing_ms"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Message          string `json:"message,omitempty"`
	Uptime           string `json:"uptime,omitempty"`
	ConnectedClients int    `json:"connected_clients"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type   string      `json:"type"`
	Events []EventType `json:"events,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	// events the client subscribed to; nil means all
	subscription map[EventType]bool
}

func (c *Client) wants(t EventType) bool {
	if c.subscription == nil || t == EventTypePong {
		return true
	}
	return c.subscription[t]
}
