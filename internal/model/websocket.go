package model

// WebSocket control message types
const (
	WSMessageTypePing = "ping"
	WSMessageTypePong = "pong"
)

// WSMessage represents a generic client control message
type WSMessage struct {
	Type string `json:"type"`
}

// WSEventMessage is a named server event pushed to a user's connections
type WSEventMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}
