package domain

import "errors"

// Error kinds. Match with errors.Is.
var (
	ErrConfiguration  = errors.New("configuration error")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUpstreamAuth   = errors.New("upstream auth error")
	ErrUpstreamWrite  = errors.New("upstream write error")
	ErrNotFound       = errors.New("not found")
	ErrPersistence    = errors.New("persistence error")
)

// KindError carries a user-facing message classified under one error kind.
type KindError struct {
	Kind    error
	Message string
	Cause   error
}

// NewError builds a KindError. An empty message falls back to the kind's text.
func NewError(kind error, message string, cause error) error {
	if message == "" {
		message = kind.Error()
	}
	return &KindError{Kind: kind, Message: message, Cause: cause}
}

func (e *KindError) Error() string {
	return e.Message
}

func (e *KindError) Is(target error) bool {
	return target == e.Kind
}

func (e *KindError) Unwrap() error {
	return e.Cause
}

// KindOf returns the first known kind err matches, or nil.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrConfiguration,
		ErrUnauthorized,
		ErrInvalidRequest,
		ErrUpstreamAuth,
		ErrUpstreamWrite,
		ErrNotFound,
		ErrPersistence,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
