package domain

import "streakline/internal/clock"

// Durations is the fixed set of allowed challenge lengths in calendar days.
var Durations = []int{7, 10, 14, 30}

// ValidDuration reports whether d is one of the allowed challenge lengths.
func ValidDuration(d int) bool {
	for _, allowed := range Durations {
		if d == allowed {
			return true
		}
	}
	return false
}

// Mission is a fixed-length daily habit challenge. Day i of the challenge
// (0-indexed) is CreatedDay+i; Checks[i], if present, equals CreatedDay+i
// exactly. Once Completed or Failed is set the mission is terminal and
// Checks never changes again.
type Mission struct {
	ID          string      `json:"id"`
	OwnerID     string      `json:"owner_id"`
	Title       string      `json:"title"`
	Duration    int         `json:"duration" enum:"7,10,14,30"`
	CreatedAt   string      `json:"created_at" format:"date-time"`
	CreatedDay  clock.Day   `json:"created_day"`
	Checks      []clock.Day `json:"checks"`
	Completed   bool        `json:"completed"`
	Failed      bool        `json:"failed"`
	CompletedAt *string     `json:"completed_at,omitempty" format:"date-time"`
	FailedAt    *string     `json:"failed_at,omitempty" format:"date-time"`

	// Version is the optimistic-concurrency token, incremented on every
	// successful store write. Never exposed on the wire.
	Version int64 `json:"-"`
}

// Terminal reports whether the mission accepts no further check-ins.
func (m Mission) Terminal() bool { return m.Completed || m.Failed }

// CheckedOn reports whether a check-in exists for the given calendar day.
func (m Mission) CheckedOn(day clock.Day) bool {
	for _, c := range m.Checks {
		if c == day {
			return true
		}
	}
	return false
}

// ExpectedDay is the next calendar day a check-in is required on.
func (m Mission) ExpectedDay() clock.Day {
	return m.CreatedDay.Add(len(m.Checks))
}

type APIKey struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts" format:"date-time"`
	Type      string `json:"type"`
	OwnerID   string `json:"owner_id,omitempty"`
	MissionID string `json:"mission_id,omitempty"`
	Payload   string `json:"payload_json"`
}
