// Package kaierrors defines the shared error taxonomy used across the
// ingestion pipeline. Every pipeline-level failure is wrapped in an *Error
// carrying the operation that failed, a classification Kind, and enough
// context for the loader to decide between commit, retry, invalid-sink, and
// fatal exit.
package kaierrors

import "fmt"

// Kind classifies a pipeline error for the purposes of the failure-routing
// table.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindWrongVersion
	KindNoValidationSchema
	KindNoAssociatedHandler
	KindNoNeedToProcess
	KindNoThreadId
	KindToLargeDocument
	KindTransientConflict
	KindConnectionLost
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindWrongVersion:
		return "WrongVersionError"
	case KindNoValidationSchema:
		return "NoValidationSchemaError"
	case KindNoAssociatedHandler:
		return "NoAssociatedHandlerError"
	case KindNoNeedToProcess:
		return "NoNeedToProcessError"
	case KindNoThreadId:
		return "NoThreadIdError"
	case KindToLargeDocument:
		return "ToLargeDocumentError"
	case KindTransientConflict:
		return "TransientConflictError"
	case KindConnectionLost:
		return "ConnectionLostError"
	default:
		return "Error"
	}
}

// Error is the Op/Err/Msg error struct shared across the pipeline. Op names
// the function that raised it (e.g. "validate.Strict", "docdb.Write"); Err
// wraps an underlying cause when one exists.
type Error struct {
	Op   string
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	s := e.Kind.String()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err if it is (or wraps) a *Error, else
// KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if asError(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is (or wraps) a *Error of the given Kind.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func newf(op string, kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Op: op, Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// ValidationError reports a strict- or relaxed-path schema mismatch.
func ValidationError(op string, err error, format string, args ...interface{}) *Error {
	return newf(op, KindValidation, err, format, args...)
}

// WrongVersionError reports a missing or empty body.version on a CI topic.
func WrongVersionError(op string, format string, args ...interface{}) *Error {
	return newf(op, KindWrongVersion, nil, format, args...)
}

// NoValidationSchemaError reports that no schema key matches the topic.
func NoValidationSchemaError(op string, format string, args ...interface{}) *Error {
	return newf(op, KindNoValidationSchema, nil, format, args...)
}

// NoAssociatedHandlerError reports that no dispatch regex matched the topic.
func NoAssociatedHandlerError(op string, topic string) *Error {
	return newf(op, KindNoAssociatedHandler, nil, "no handler registered for topic %q", topic)
}

// NoNeedToProcessError reports that a handler declined the message on
// purpose (e.g. a non-container brew build). Callers must commit silently.
func NoNeedToProcessError(op string, format string, args ...interface{}) *Error {
	return newf(op, KindNoNeedToProcess, nil, format, args...)
}

// NoThreadIdError reports that no thread-id anchor could be formed.
func NoThreadIdError(op string, format string, args ...interface{}) *Error {
	return newf(op, KindNoThreadId, nil, format, args...)
}

// ToLargeDocumentError reports that a document-DB document breached the
// 16 MiB size ceiling.
func ToLargeDocumentError(op string, sizeBytes int) *Error {
	return newf(op, KindToLargeDocument, nil, "document size %d bytes exceeds 16MiB limit", sizeBytes)
}

// TransientConflictError reports OCC-retry exhaustion in the document-DB
// writer.
func TransientConflictError(op string, attempts int) *Error {
	return newf(op, KindTransientConflict, nil, "exhausted %d optimistic-concurrency attempts", attempts)
}

// ConnectionLostError reports a broker/DB/index connection event that must
// terminate the process.
func ConnectionLostError(op string, err error) *Error {
	return newf(op, KindConnectionLost, err, "connection lost")
}

// IsInvalidSink reports whether an error's policy (per the error-handling
// table) is to commit the envelope and record it to the invalid sink,
// rather than retry or fatally exit.
func IsInvalidSink(err error) bool {
	switch KindOf(err) {
	case KindWrongVersion, KindNoValidationSchema, KindValidation, KindNoThreadId, KindToLargeDocument:
		return true
	default:
		return false
	}
}
