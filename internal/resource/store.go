package resource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Store is the CRUD surface of the resource API. Every call is a fresh
// round-trip; implementations do not cache.
type Store interface {
	Get(ctx context.Context, kind Kind, namespace, name string) (*Object, error)
	List(ctx context.Context, kind Kind, namespace string) ([]Object, error)
	Create(ctx context.Context, kind Kind, namespace string, obj *Object) (*Object, error)
	Update(ctx context.Context, kind Kind, namespace string, obj *Object) (*Object, error)
	// Patch applies a JSON merge patch (RFC 7386).
	Patch(ctx context.Context, kind Kind, namespace, name string, patch []byte) (*Object, error)
	Delete(ctx context.Context, kind Kind, namespace, name string) error
}

var (
	ErrNotFound = errors.New("resource not found")
	ErrConflict = errors.New("resource already exists")
)

// StatusError is a non-2xx answer from the resource API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("resource api returned %d", e.Code)
	}
	return fmt.Sprintf("resource api returned %d: %s", e.Code, e.Message)
}

// Is maps 404 and 409 onto ErrNotFound and ErrConflict.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrConflict:
		return e.Code == http.StatusConflict
	}
	return false
}

// IsCallerError reports errors caused by the request rather than the backend.
func IsCallerError(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
	}
	return false
}
