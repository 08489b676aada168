package core

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	ErrStorage  = errors.New("storage failure")
)

type Repository interface {
	// FindBinding returns ErrNotFound when the chat user has no binding
	FindBinding(ctx context.Context, chatUserID string) (*BindingRecord, error)

	// SaveBinding inserts the record or overwrites the existing one with the same ID
	SaveBinding(ctx context.Context, record *BindingRecord) error
}
