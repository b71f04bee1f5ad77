package types

import "time"

// Entity carries the creation and last-update timestamps of a stored record.
// The engine stamps both from its own clock, always in UTC.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntityAt creates an Entity created and updated at t.
func NewEntityAt(t time.Time) Entity {
	now := t.UTC()
	return Entity{
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch moves UpdatedAt to t.
func (e *Entity) Touch(t time.Time) {
	e.UpdatedAt = t.UTC()
}
