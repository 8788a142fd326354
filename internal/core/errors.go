package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain failures so callers can react to each one.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindReference  ErrorKind = "reference"
	KindSync       ErrorKind = "sync"
	KindDataShape  ErrorKind = "data_shape"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicateID = errors.New("duplicate id")
	ErrSameAccount = errors.New("source and destination account are the same")
)

// DomainError is returned by every ledger command that does not apply.
type DomainError struct {
	Kind   ErrorKind
	Op     string // command name, e.g. "add_transaction"
	Entity string // "account", "transaction", ...
	ID     string
	Err    error
}

func (e *DomainError) Error() string {
	switch {
	case e.Entity != "" && e.ID != "":
		return fmt.Sprintf("%s: %s %q: %v", e.Op, e.Entity, e.ID, e.Err)
	case e.Entity != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Entity, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *DomainError) Unwrap() error { return e.Err }

func ValidationError(op, entity string, err error) *DomainError {
	return &DomainError{Kind: KindValidation, Op: op, Entity: entity, Err: err}
}

func ReferenceError(op, entity, id string) *DomainError {
	return &DomainError{Kind: KindReference, Op: op, Entity: entity, ID: id, Err: ErrNotFound}
}

func SyncError(op string, err error) *DomainError {
	return &DomainError{Kind: KindSync, Op: op, Err: err}
}

func DataShapeError(entity, id string, err error) *DomainError {
	return &DomainError{Kind: KindDataShape, Op: "decode", Entity: entity, ID: id, Err: err}
}

// KindOf returns the kind of the first DomainError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsReference(err error) bool  { return KindOf(err) == KindReference }
func IsSync(err error) bool       { return KindOf(err) == KindSync }
func IsDataShape(err error) bool  { return KindOf(err) == KindDataShape }
