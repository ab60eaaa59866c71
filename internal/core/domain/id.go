package domain

import (
	"github.com/google/uuid"
)

type CallID uuid.UUID
type UserID string
type RoomID string

func NewCallID() CallID {
	return CallID(uuid.New())
}

func ParseCallID(s string) (CallID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return CallID{}, err
	}
	return CallID(id), nil
}

func (id CallID) String() string {
	return uuid.UUID(id).String()
}

func (id CallID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id UserID) String() string {
	return string(id)
}

func (id RoomID) String() string {
	return string(id)
}

// PresentationHandle is owned by the call screen; the core only passes it back.
type PresentationHandle string
