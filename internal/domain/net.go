package domain

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type (
	NetID   string
	GroupID string
)

// DisciplineMode decides who may join a net.
type DisciplineMode string

const (
	DisciplineCasual  DisciplineMode = "CASUAL"
	DisciplineFocused DisciplineMode = "FOCUSED"
)

// ParseDiscipline accepts the mode in any letter case.
func ParseDiscipline(s string) (DisciplineMode, error) {
	switch DisciplineMode(strings.ToUpper(strings.TrimSpace(s))) {
	case DisciplineCasual:
		return DisciplineCasual, nil
	case DisciplineFocused:
		return DisciplineFocused, nil
	}
	return "", fmt.Errorf("unknown discipline mode %q", s)
}

// VoiceNet describes a joinable voice channel. It is read-only to the orchestrator.
type VoiceNet struct {
	ID            NetID          `json:"id" validate:"required,max=64,excludesall=/"`
	Code          string         `json:"code" validate:"required,max=16"`
	Label         string         `json:"label" validate:"max=64"`
	Discipline    DisciplineMode `json:"discipline" validate:"required,oneof=CASUAL FOCUSED"`
	Temporary     bool           `json:"temporary"`
	LinkedGroupID GroupID        `json:"linked_group_id,omitempty"`
	IsDefault     bool           `json:"is_default"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags on the descriptor.
func (n VoiceNet) Validate() error {
	if err := validate.Struct(n); err != nil {
		return fmt.Errorf("invalid net %q: %w", n.ID, err)
	}
	return nil
}

func (n VoiceNet) DisplayName() string {
	if n.Label != "" {
		return n.Label
	}
	return n.Code
}
