package asm

import (
	"errors"
	"fmt"
)

// Kind classifies document errors.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidParent
	KindUnknownLabel
	KindUnknownPartID
	KindDuplicatePartID
	KindUnknownParentID
	KindCyclicParent
	KindNoGeometry
	KindExportFailure
	KindImportFailure
	KindDuplicateNodeID
	KindInvalidShape
	KindInvalidDefinition
)

func (k Kind) String() string {
	switch k {
	case KindInvalidParent:
		return "InvalidParent"
	case KindUnknownLabel:
		return "UnknownLabel"
	case KindUnknownPartID:
		return "UnknownPartId"
	case KindDuplicatePartID:
		return "DuplicatePartId"
	case KindUnknownParentID:
		return "UnknownParentId"
	case KindCyclicParent:
		return "CyclicParent"
	case KindNoGeometry:
		return "NoGeometry"
	case KindExportFailure:
		return "ExportFailure"
	case KindImportFailure:
		return "ImportFailure"
	case KindDuplicateNodeID:
		return "DuplicateNodeId"
	case KindInvalidShape:
		return "InvalidShape"
	case KindInvalidDefinition:
		return "InvalidDefinition"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidParent     = &Error{Kind: KindInvalidParent}
	ErrUnknownLabel      = &Error{Kind: KindUnknownLabel}
	ErrUnknownPartID     = &Error{Kind: KindUnknownPartID}
	ErrDuplicatePartID   = &Error{Kind: KindDuplicatePartID}
	ErrUnknownParentID   = &Error{Kind: KindUnknownParentID}
	ErrCyclicParent      = &Error{Kind: KindCyclicParent}
	ErrNoGeometry        = &Error{Kind: KindNoGeometry}
	ErrExportFailure     = &Error{Kind: KindExportFailure}
	ErrImportFailure     = &Error{Kind: KindImportFailure}
	ErrDuplicateNodeID   = &Error{Kind: KindDuplicateNodeID}
	ErrInvalidShape      = &Error{Kind: KindInvalidShape}
	ErrInvalidDefinition = &Error{Kind: KindInvalidDefinition}
)

// ErrClosed is returned by operations on a closed document.
var ErrClosed = errors.New("asm: document is closed")

// Error is a structured document error. Address and ID name the offending
// label or definition id when known.
type Error struct {
	Kind    Kind
	Address Address
	ID      string
	Err     error
}

func (e *Error) Error() string {
	msg := "asm: " + e.Kind.String()
	if e.Address != "" {
		msg += fmt.Sprintf(" (label: %s)", e.Address)
	}
	if e.ID != "" {
		msg += fmt.Sprintf(" (id: %s)", e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func labelErr(kind Kind, addr Address, format string, args ...any) *Error {
	return &Error{Kind: kind, Address: addr, Err: fmt.Errorf(format, args...)}
}

func idErr(kind Kind, id string, format string, args ...any) *Error {
	return &Error{Kind: kind, ID: id, Err: fmt.Errorf(format, args...)}
}
