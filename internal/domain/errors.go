package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindConfig       ErrorKind = "config"
	KindDiscovery    ErrorKind = "discovery"
	KindPrecondition ErrorKind = "precondition"
	KindArchive      ErrorKind = "archive"
	KindIO           ErrorKind = "io"
	KindEncryption   ErrorKind = "encryption"
)

// Error is the engine's typed failure. Output carries the diagnostic text
// an external tool printed, if any.
type Error struct {
	Kind   ErrorKind
	Op     string
	Output string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error: %s", e.Kind, e.Op)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Output != "" {
		msg += ", output: " + e.Output
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func ConfigError(op string, err error) error {
	return &Error{Kind: KindConfig, Op: op, Err: err}
}

func DiscoveryError(op string, err error) error {
	return &Error{Kind: KindDiscovery, Op: op, Err: err}
}

func PreconditionError(op string, err error) error {
	return &Error{Kind: KindPrecondition, Op: op, Err: err}
}

func ArchiveError(op string, err error, output string) error {
	return &Error{Kind: KindArchive, Op: op, Err: err, Output: output}
}

func IOError(op string, err error) error {
	return &Error{Kind: KindIO, Op: op, Err: err}
}

func EncryptionError(op string, err error, output string) error {
	return &Error{Kind: KindEncryption, Op: op, Err: err, Output: output}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsFatal reports whether err must stop a run. Only a discovery failure for a
// single candidate is recoverable.
func IsFatal(err error) bool {
	return err != nil && KindOf(err) != KindDiscovery
}
