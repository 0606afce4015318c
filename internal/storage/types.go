package storage

import "errors"

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput indicates that the input parameters are invalid,
	// including illegal status transitions.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupported indicates the backend does not implement an optional
	// capability (vector similarity on SQLite, for example).
	ErrUnsupported = errors.New("operation not supported by this backend")
)

const (
	// DefaultListLimit is applied when ListOptions.Limit is unset.
	DefaultListLimit = 50

	// MaxListLimit caps any bounded listing.
	MaxListLimit = 200

	// NoLimit requests the user's entire active set. Ranking scores every
	// active record, so it must never read through a cap.
	NoLimit = -1
)

// ListOptions scopes and bounds an active-record listing.
type ListOptions struct {
	// UserID is required; listings are always user-scoped.
	UserID string

	// Category restricts results to one category. Empty means all.
	Category string

	// Limit bounds the result size (default: 50, max: 200).
	// NoLimit returns everything.
	Limit int
}

// Normalize applies defaults and caps to the options.
func (o *ListOptions) Normalize() {
	if o.Limit == 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit < 0 {
		o.Limit = NoLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
}
