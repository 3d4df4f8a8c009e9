package store

import "errors"

var (
	ErrNotFound        = errors.New("journal entry not found")
	ErrNotOwner        = errors.New("journal entry owned by another client")
	ErrEditingDisabled = errors.New("journal editing disabled")
)
