// Package token issues the short-lived signed credentials the realtime voice
// backend accepts on connect.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/voicenet/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const DefaultTTL = 10 * time.Minute

// Metadata is the side-channel payload other participants see for a member.
type Metadata struct {
	DisplayName      string `json:"displayName"`
	ClientInstanceID string `json:"clientInstanceId"`
}

// Claims is the credential payload. The subject is the participant identity.
type Claims struct {
	Room     string `json:"room"`
	Name     string `json:"name,omitempty"`
	Metadata string `json:"metadata,omitempty"`
	jwt.RegisteredClaims
}

type Config struct {
	Endpoint  string
	APIKey    string
	APISecret string
	TTL       time.Duration
}

// Configured reports whether all three backend settings are present.
func (c Config) Configured() bool {
	return c.Endpoint != "" && c.APIKey != "" && c.APISecret != ""
}

// JWTIssuer signs HS256 tokens with the backend API secret.
type JWTIssuer struct {
	cfg Config
	now func() time.Time
}

func NewJWTIssuer(cfg Config) *JWTIssuer {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &JWTIssuer{cfg: cfg, now: time.Now}
}

// Issue returns a credential for one connection attempt. A deployment without
// endpoint, key or secret gets BackendNotConfigured, never a panic.
func (i *JWTIssuer) Issue(ctx context.Context, req domain.CredentialRequest) (domain.Credential, error) {
	if !i.cfg.Configured() {
		return domain.Credential{}, domain.ErrBackendNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return domain.Credential{}, domain.WrapError(domain.CodeCredential, "issue token", err)
	}
	if req.NetID == "" || req.UserID == "" {
		return domain.Credential{}, domain.WrapError(domain.CodeCredential, "issue token", errors.New("net and user are required"))
	}

	identity := domain.ParticipantIDFor(req.UserID, req.ClientInstanceID)
	meta, err := json.Marshal(Metadata{DisplayName: req.DisplayName, ClientInstanceID: req.ClientInstanceID})
	if err != nil {
		return domain.Credential{}, domain.WrapError(domain.CodeCredential, "encode metadata", err)
	}
	now := i.now()
	expiry := now.Add(i.cfg.TTL)
	claims := &Claims{
		Room:     string(req.NetID),
		Name:     req.DisplayName,
		Metadata: string(meta),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.APIKey,
			Subject:   string(identity),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.APISecret))
	if err != nil {
		return domain.Credential{}, domain.WrapError(domain.CodeCredential, "sign token", err)
	}

	log.Debug().Str("module", "token").Str("net", string(req.NetID)).Str("identity", string(identity)).Msg("credential issued")
	return domain.Credential{
		Endpoint: i.cfg.Endpoint,
		Token:    signed,
		RoomName: string(req.NetID),
		Identity: identity,
		Expiry:   expiry,
	}, nil
}

// Verify parses a token signed with secret and returns its claims.
func Verify(tokenString, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	return claims, nil
}

// DecodeMetadata reads the metadata claim; an empty claim is not an error.
func (c *Claims) DecodeMetadata() (Metadata, error) {
	var m Metadata
	if c.Metadata == "" {
		return m, nil
	}
	err := json.Unmarshal([]byte(c.Metadata), &m)
	return m, err
}
