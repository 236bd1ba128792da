package relay

import "github.com/james226/scene-relay/scene"

// Message types exchanged over the real-time channel.
const (
	MessageTypeEdit               = "edit"
	MessageTypeUpdate             = "update"
	MessageTypeConnected          = "connected"
	MessageTypeClientConnected    = "client-connected"
	MessageTypeClientDisconnected = "client-disconnected"
	MessageTypeRejected           = "rejected"
	MessageTypePing               = "ping"
	MessageTypePong               = "pong"
)

// Message is the envelope written to clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type Peer struct {
	ClientID string `json:"clientId"`
	Name     string `json:"name,omitempty"`
}

// Welcome is sent to a client right after it registers.
type Welcome struct {
	ClientID string            `json:"clientId"`
	Clients  []Peer            `json:"clients"`
	Snapshot []scene.EditEvent `json:"snapshot"`
}

// Rejection is returned to the sender of an invalid edit in strict mode.
type Rejection struct {
	Target string `json:"target,omitempty"`
	Error  string `json:"error"`
}
