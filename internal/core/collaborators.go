//go:generate go run go.uber.org/mock/mockgen -source=collaborators.go -destination=../mocks/mock_collaborators.go -package=mocks
package core

import (
	"context"

	"github.com/dkeye/voicenet/internal/domain"
)

// CredentialIssuer mints short-lived transport credentials.
// It returns domain.ErrBackendNotConfigured when the realtime backend has no
// endpoint or signing secrets; every other failure is a credential error.
type CredentialIssuer interface {
	Issue(ctx context.Context, req domain.CredentialRequest) (domain.Credential, error)
}

// RosterStore is the remote presence table refreshed by the heartbeat.
type RosterStore interface {
	Upsert(ctx context.Context, rec domain.SessionRecord) error
	Delete(ctx context.Context, netID domain.NetID, sessionID string) error
	List(ctx context.Context, netID domain.NetID) ([]domain.SessionRecord, error)
}

// NetDirectory resolves net descriptors. Read-only to the orchestrator.
type NetDirectory interface {
	Get(ctx context.Context, id domain.NetID) (domain.VoiceNet, error)
	List(ctx context.Context) []domain.VoiceNet
}

// IdentityLookup supplies the user object consumed by the access policy.
type IdentityLookup interface {
	Lookup(ctx context.Context, id domain.UserID) (domain.User, error)
}
