package app

import (
	"fmt"

	"github.com/dkeye/voicenet/internal/domain"
)

// Decision is the outcome of an access check. Reason is set only on denial.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// AccessPolicy decides whether a user may join a net. Implementations are pure.
type AccessPolicy interface {
	Evaluate(user domain.User, net domain.VoiceNet) Decision
}

// TierPolicy gates permanent FOCUSED nets on membership tier.
type TierPolicy struct {
	MinTier domain.MembershipTier
}

func DefaultPolicy() TierPolicy {
	return TierPolicy{MinTier: domain.TierMember}
}

func (p TierPolicy) Evaluate(user domain.User, net domain.VoiceNet) Decision {
	switch {
	case net.Discipline == domain.DisciplineCasual:
		return allow()
	case net.Temporary:
		return allow()
	case net.Discipline != domain.DisciplineFocused:
		return deny("net %s has unknown discipline %q", net.ID, net.Discipline)
	case user.Tier >= p.MinTier:
		return allow()
	default:
		return deny("net %s is focused; tier %s required, user has %s", net.Code, p.MinTier, user.Tier)
	}
}
