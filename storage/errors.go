package storage

import (
	"errors"
	"fmt"
)

// StoreUnavailableError reports that the backing grid could not be reached,
// authenticated against, read or written. It is not retried inline.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("storage: %s: store unavailable: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// RowNotFoundError is returned when a patch targets a row outside the
// populated extent of the sheet.
type RowNotFoundError struct {
	Row       int
	Populated int
}

func (e *RowNotFoundError) Error() string {
	return fmt.Sprintf("storage: row %d not found (populated rows: %d)", e.Row, e.Populated)
}

// UnknownColumnError is returned for a column name outside the schema.
type UnknownColumnError struct {
	Column string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("storage: unknown column %q", e.Column)
}

// ErrHeaderMismatch is returned when an existing sheet's header row does not
// match the listing schema.
var ErrHeaderMismatch = errors.New("storage: sheet header does not match listing schema")
