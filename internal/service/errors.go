package service

import (
	"errors"

	"analytics-chat-be/pkg/cosmos"
)

var (
	ErrUnsupportedContainer = errors.New("unsupported container")
	ErrInvalidOperator      = errors.New("invalid operator")
	ErrUnsupportedFileType  = errors.New("unsupported file type")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrUserNotFound         = errors.New("user not found")
)

// ContainerProvider resolves logical container names; *cosmos.Gateway
// satisfies it.
type ContainerProvider interface {
	Container(name string) (cosmos.Container, error)
}
