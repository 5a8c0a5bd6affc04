//go:generate go run go.uber.org/mock/mockgen -source=transport.go -destination=../mocks/mock_transport.go -package=mocks
package core

import (
	"context"

	"github.com/dkeye/voicenet/internal/domain"
)

// TransportState is the backend's own connection view. It is coarser than the
// orchestrator's state machine and only used for diagnostics and guards.
type TransportState string

const (
	TransportIdle         TransportState = "idle"
	TransportConnecting   TransportState = "connecting"
	TransportConnected    TransportState = "connected"
	TransportReconnecting TransportState = "reconnecting"
	TransportClosed       TransportState = "closed"
)

// Transport is the capability set every voice backend implements.
// The orchestrator owns exactly one live Transport and is its only mutator.
type Transport interface {
	// Connect joins the net and resolves with the roster at connect time.
	Connect(ctx context.Context, cred domain.Credential, netID domain.NetID, user domain.User) ([]domain.Participant, error)
	// Disconnect must be safe to call when never connected, and more than once.
	Disconnect(ctx context.Context) error
	SetMicEnabled(ctx context.Context, enabled bool) error
	SetTransmitActive(ctx context.Context, active bool) error
	// Participants returns a snapshot copy of the backend roster.
	Participants() []domain.Participant
	State() TransportState
	// Subscribe registers handler for kind; handlers must not block.
	Subscribe(kind EventKind, handler func(Event)) (unsubscribe func())
}

// DeviceSwitcher is implemented by backends that support hot device swap.
type DeviceSwitcher interface {
	AudioDevices(ctx context.Context) ([]domain.AudioDevice, error)
	SetAudioDevice(ctx context.Context, deviceID string) error
}

// TransportFactory builds a fresh, unconnected Transport for a backend.
type TransportFactory interface {
	NewTransport(backend domain.Backend) (Transport, error)
}
