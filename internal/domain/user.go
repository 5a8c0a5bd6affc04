// Package domain contains entities without behaviour, just meta-data and validation.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

const (
	MaxUserIDLen      = 64
	MaxDisplayNameLen = 36
)

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrUserIDEmpty        = errors.New("user id empty")
)

type UserID string

// MembershipTier is the rank a member holds in the organisation.
// Tiers are ordered: a higher value always includes the rights of a lower one.
type MembershipTier int

const (
	TierGuest MembershipTier = iota
	TierAffiliate
	TierMember
	TierOfficer
	TierCommander
)

var tierNames = map[MembershipTier]string{
	TierGuest:     "guest",
	TierAffiliate: "affiliate",
	TierMember:    "member",
	TierOfficer:   "officer",
	TierCommander: "commander",
}

func (t MembershipTier) String() string {
	if s, ok := tierNames[t]; ok {
		return s
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// ParseTier maps a config or API string onto a tier. Unknown names are an error.
func ParseTier(s string) (MembershipTier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range tierNames {
		if name == s {
			return t, nil
		}
	}
	return TierGuest, fmt.Errorf("unknown membership tier %q", s)
}

type User struct {
	ID          UserID         `json:"id"`
	DisplayName string         `json:"display_name"`
	Tier        MembershipTier `json:"tier"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id UserID, displayName string, tier MembershipTier) (User, error) {
	if id == "" {
		return User{}, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return User{}, fmt.Errorf("user id longer than %d", MaxUserIDLen)
	}
	u := User{ID: id, Tier: tier}
	if err := u.SetDisplayName(displayName); err != nil {
		return User{}, err
	}
	return u, nil
}

func (u *User) SetDisplayName(name string) error {
	if len(name) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	u.DisplayName = name
	return nil
}
