package storage

import "errors"

var (
	ErrNotFound = errors.New("storage: not found")
	ErrExists   = errors.New("storage: already exists")
	// ErrAmbiguous is returned when a short card hash matches several cards.
	ErrAmbiguous = errors.New("storage: ambiguous hash prefix")
	// ErrConflict means another writer changed the row between read and write.
	ErrConflict = errors.New("storage: concurrent update")
	// ErrHistoryRewritten is returned when an update does not extend the
	// stored review history.
	ErrHistoryRewritten = errors.New("storage: review history can only be appended to")
)
