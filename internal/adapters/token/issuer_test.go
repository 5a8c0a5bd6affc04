package token

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/voicenet/internal/domain"
	"github.com/stretchr/testify/require"
)

var request = domain.CredentialRequest{
	NetID:            "alpha",
	UserID:           "alice",
	DisplayName:      "Alice",
	ClientInstanceID: "tab-1",
}

func TestIssue_NotConfigured(t *testing.T) {
	for name, cfg := range map[string]Config{
		"empty":     {},
		"no secret": {Endpoint: "wss://voice", APIKey: "key"},
		"no key":    {Endpoint: "wss://voice", APISecret: "secret"},
		"no url":    {APIKey: "key", APISecret: "secret"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewJWTIssuer(cfg).Issue(context.Background(), request)
			require.ErrorIs(t, err, domain.ErrBackendNotConfigured)
		})
	}
}

func TestIssue_SignsVerifiableToken(t *testing.T) {
	req := require.New(t)
	issuer := NewJWTIssuer(Config{Endpoint: "wss://voice.example", APIKey: "key", APISecret: "secret", TTL: time.Minute})
	now := time.Now().Truncate(time.Second)
	issuer.now = func() time.Time { return now }

	cred, err := issuer.Issue(context.Background(), request)
	req.NoError(err)
	req.Equal("wss://voice.example", cred.Endpoint)
	req.Equal("alpha", cred.RoomName)
	req.Equal(domain.ParticipantID("alice:tab-1"), cred.Identity)
	req.Equal(now.Add(time.Minute), cred.Expiry)

	claims, err := Verify(cred.Token, "secret")
	req.NoError(err)
	req.Equal("key", claims.Issuer)
	req.Equal("alice:tab-1", claims.Subject)
	req.Equal("alpha", claims.Room)
	req.Equal("Alice", claims.Name)
	meta, err := claims.DecodeMetadata()
	req.NoError(err)
	req.Equal(Metadata{DisplayName: "Alice", ClientInstanceID: "tab-1"}, meta)

	_, err = Verify(cred.Token, "other-secret")
	req.Error(err)
}

func TestIssue_RejectsIncompleteRequest(t *testing.T) {
	issuer := NewJWTIssuer(Config{Endpoint: "wss://voice", APIKey: "key", APISecret: "secret"})
	_, err := issuer.Issue(context.Background(), domain.CredentialRequest{NetID: "alpha"})
	require.ErrorIs(t, err, domain.ErrCredential)
}

func TestVerify_Expired(t *testing.T) {
	issuer := NewJWTIssuer(Config{Endpoint: "wss://voice", APIKey: "key", APISecret: "secret", TTL: time.Minute})
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }

	cred, err := issuer.Issue(context.Background(), request)
	require.NoError(t, err)
	_, err = Verify(cred.Token, "secret")
	require.Error(t, err)
}
