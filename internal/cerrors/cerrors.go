// Package cerrors defines the error kinds the engine surfaces to
// dispatch callers (spec §7), following the teacher's wrap-and-unwrap
// style built on github.com/pkg/errors rather than bare sentinels.
package cerrors

import "github.com/pkg/errors"

// Kind is one of the fixed error categories §7 enumerates.
type Kind int

const (
	// Unknown is returned by KindOf(err) when err doesn't carry one of
	// the sentinels below (e.g. it's a plain host-library error that
	// was never wrapped).
	Unknown Kind = iota
	HostLibraryFailure
	PathMappingFailure
	UnsupportedDatatype
	DanglingReference
	DatatypeTooDeep
	MarkerCorrupt
)

func (k Kind) String() string {
	switch k {
	case HostLibraryFailure:
		return "HostLibraryFailure"
	case PathMappingFailure:
		return "PathMappingFailure"
	case UnsupportedDatatype:
		return "UnsupportedDatatype"
	case DanglingReference:
		return "DanglingReference"
	case DatatypeTooDeep:
		return "DatatypeTooDeep"
	case MarkerCorrupt:
		return "MarkerCorrupt"
	default:
		return "Unknown"
	}
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.kind.String() + ": " + e.err.Error() }
func (e *kindError) Cause() error  { return e.err }
func (e *kindError) Unwrap() error { return e.err }

// Wrap attaches kind to err, preserving err as the cause so
// errors.Cause(err) and KindOf(err) both work on the result.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: errors.Wrap(err, msg)}
}

// New constructs a fresh error of the given kind.
func New(kind Kind, msg string) error {
	return &kindError{kind: kind, err: errors.New(msg)}
}

// KindOf recovers the Kind attached to err by Wrap/New, or Unknown if
// err was never classified.
func KindOf(err error) Kind {
	for err != nil {
		if ke, ok := err.(*kindError); ok {
			return ke.kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return Unknown
}
