package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind groups gRPC codes by what a caller can do about them.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	// KindUnavailable failures may succeed on a later attempt.
	KindUnavailable
	// KindDenied usually means security rules reject the signed-in user.
	KindDenied
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	case KindDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Error is a classified Firestore failure. It satisfies
// repositories.RepositoryError.
type Error struct {
	Op   string
	Kind Kind
	err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("firestore %s (%s): %v", e.Op, e.Kind, e.err)
}

func (e *Error) Unwrap() error { return e.err }

// IsNotFound reports whether the document or collection was missing.
func (e *Error) IsNotFound() bool { return e.Kind == KindNotFound }

// IsUnavailable reports whether retrying later could succeed.
func (e *Error) IsUnavailable() bool { return e.Kind == KindUnavailable }

func kindOf(code codes.Code) Kind {
	switch code {
	case codes.NotFound:
		return KindNotFound
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted, codes.Internal:
		return KindUnavailable
	case codes.PermissionDenied, codes.Unauthenticated:
		return KindDenied
	default:
		return KindUnknown
	}
}

// WrapError classifies err under op. nil stays nil, cancellation and deadline
// errors come back as the context sentinels, and an already classified error
// is returned unchanged.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	code := status.Code(err)
	switch code {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	return &Error{Op: op, Kind: kindOf(code), err: err}
}
