package dao

import "errors"

// Sentinel errors shared by DAO implementations; detect them with
// errors.Is.
var (
	// ErrNotFound reports a key with no stored record.
	ErrNotFound = errors.New("dao: not found")

	// ErrInvalidID reports an empty or malformed record key.
	ErrInvalidID = errors.New("dao: invalid id")

	// ErrNilEntity reports an attempt to persist a nil record.
	ErrNilEntity = errors.New("dao: nil entity")
)
