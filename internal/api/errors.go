package api

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by fetch errors for repositories that do not exist
	ErrNotFound = errors.New("repository not found")
	// ErrForbidden is matched by fetch errors caused by missing or insufficient credentials
	ErrForbidden = errors.New("access denied")
)

// Kind classifies a fetch failure
type Kind int

const (
	KindOther Kind = iota
	KindNotFound
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindForbidden:
		return "forbidden"
	default:
		return "other"
	}
}

// FetchError is returned by the clients when GitHub cannot be queried
type FetchError struct {
	Kind       Kind
	Repository string
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("repository '%s' not found", e.Repository)
	case KindForbidden:
		return fmt.Sprintf("access to repository '%s' denied: %v", e.Repository, e.Err)
	default:
		return fmt.Sprintf("failed to fetch %s: %v", e.Repository, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrNotFound and ErrForbidden by kind
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrForbidden:
		return e.Kind == KindForbidden
	}
	return false
}
