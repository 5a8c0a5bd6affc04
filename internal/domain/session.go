package domain

import "time"

// ConnectionState is the orchestrator's view of the session lifecycle.
type ConnectionState string

const (
	StateIdle         ConnectionState = "IDLE"
	StateJoining      ConnectionState = "JOINING"
	StateConnected    ConnectionState = "CONNECTED"
	StateReconnecting ConnectionState = "RECONNECTING"
	StateError        ConnectionState = "ERROR"
)

// Live reports whether a roster is meaningful in this state.
func (s ConnectionState) Live() bool {
	return s == StateConnected || s == StateReconnecting
}

// Backend names a transport implementation.
type Backend string

const (
	BackendNone      Backend = ""
	BackendSimulated Backend = "simulated"
	BackendRealtime  Backend = "realtime"
)

// Session is a read-only snapshot of one orchestrator.
type Session struct {
	ActiveNetID      NetID           `json:"active_net_id,omitempty"`
	State            ConnectionState `json:"state"`
	Participants     []Participant   `json:"participants"`
	MicEnabled       bool            `json:"mic_enabled"`
	MicPending       bool            `json:"mic_pending"`
	TransmitActive   bool            `json:"transmit_active"`
	TransmitPending  bool            `json:"transmit_pending"`
	Backend          Backend         `json:"backend,omitempty"`
	ClientInstanceID string          `json:"client_instance_id,omitempty"`
	LastError        error           `json:"-"`
}

// ErrorCode returns the code of LastError, or "" when there is none.
func (s Session) ErrorCode() Code {
	return CodeOf(s.LastError)
}

// Credential authorizes exactly one connection attempt. Never persisted.
type Credential struct {
	Endpoint string
	Token    string
	RoomName string
	Identity ParticipantID
	Expiry   time.Time
}

// CredentialRequest is what the orchestrator asks the issuer for.
type CredentialRequest struct {
	NetID            NetID
	UserID           UserID
	DisplayName      string
	ClientInstanceID string
}

// SessionRecord is the persisted presence row refreshed by the heartbeat.
type SessionRecord struct {
	SessionID  string    `json:"session_id"`
	NetID      NetID     `json:"net_id"`
	UserID     UserID    `json:"user_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
	Speaking   bool      `json:"speaking"`
}
