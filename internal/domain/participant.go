package domain

import "time"

type ParticipantID string

// ParticipantIDFor derives the roster identity of one client instance of a user.
// The same user on two devices yields two distinct participants.
func ParticipantIDFor(user UserID, clientInstanceID string) ParticipantID {
	if clientInstanceID == "" {
		return ParticipantID(user)
	}
	return ParticipantID(string(user) + ":" + clientInstanceID)
}

// Participant is one roster entry of a connected net.
// No transport or lifecycle logic here.
type Participant struct {
	ID               ParticipantID `json:"id"`
	DisplayName      string        `json:"display_name"`
	ClientInstanceID string        `json:"client_instance_id"`
	Speaking         bool          `json:"speaking"`
	JoinedAt         time.Time     `json:"joined_at"`
}

// AudioDevice is an input device a backend can switch to.
type AudioDevice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}
