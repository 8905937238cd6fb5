package qrtile

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindParse Kind = iota + 1
	KindAmbiguous
	KindIncomplete
	KindAuthentication
	KindIntegrity
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "ParseFailure"
	case KindAmbiguous:
		return "AmbiguousMessage"
	case KindIncomplete:
		return "IncompleteMessage"
	case KindAuthentication:
		return "AuthenticationFailure"
	case KindIntegrity:
		return "IntegrityFailure"
	case KindInvalidInput:
		return "InvalidInput"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

var (
	ErrParse             = errors.New("qrtile: parse failure")
	ErrAmbiguousMessage  = errors.New("qrtile: ambiguous message")
	ErrIncompleteMessage = errors.New("qrtile: incomplete message")
	ErrAuthentication    = errors.New("qrtile: authentication failure")
	ErrIntegrity         = errors.New("qrtile: integrity failure")
	ErrInvalidInput      = errors.New("qrtile: invalid input")
)

// Err returns the sentinel error of k.
func (k Kind) Err() error {
	switch k {
	case KindParse:
		return ErrParse
	case KindAmbiguous:
		return ErrAmbiguousMessage
	case KindIncomplete:
		return ErrIncompleteMessage
	case KindAuthentication:
		return ErrAuthentication
	case KindIntegrity:
		return ErrIntegrity
	default:
		return ErrInvalidInput
	}
}

// Stage names a step of the decoder pipeline.
type Stage string

const (
	StageRead       Stage = "read"
	StageScan       Stage = "scan"
	StageReassemble Stage = "reassemble"
	StageDecrypt    Stage = "decrypt"
	StageExpand     Stage = "expand"
	StageUnwrap     Stage = "unwrap"
	StageVerify     Stage = "verify"
)

// DecodeError is returned by every failed decode. errors.Is matches both the
// sentinel of Kind and anything in the chain of Err.
type DecodeError struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("qrtile: %s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{e.Kind.Err(), e.Err}
}

func decodeErr(stage Stage, kind Kind, err error) *DecodeError {
	return &DecodeError{Stage: stage, Kind: kind, Err: err}
}

// KindOf returns the Kind of err, or 0 when err did not come from a decode.
func KindOf(err error) Kind {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}
