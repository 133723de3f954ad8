package protocol

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the failure class of a backend operation. Callers
// branch on codes rather than on message text, so backends must map their
// native failures onto these values.
type ErrorCode string

const (
	// CodeAlreadyExists: the target file, directory, or record exists and
	// overwrite was not requested. Retryable with overwrite.
	CodeAlreadyExists ErrorCode = "already_exists"

	// CodeSessionClosed: the session or sub-session the operation was
	// addressed to is gone. Not retryable on the same session.
	CodeSessionClosed ErrorCode = "session_closed"

	// CodeNotFound: the path or record does not exist.
	CodeNotFound ErrorCode = "not_found"

	// CodePermission: the backend or remote host denied the operation.
	CodePermission ErrorCode = "permission"

	// CodeHostKeyMismatch: the presented host key differs from the pinned
	// one. The error carries a *HostKeyMismatchError with the details.
	CodeHostKeyMismatch ErrorCode = "host_key_mismatch"

	// CodeTimeout: the operation exceeded its deadline.
	CodeTimeout ErrorCode = "timeout"

	// CodeInvalidName: the supplied name or path is not acceptable to the
	// backend (empty, reserved, or contains separators).
	CodeInvalidName ErrorCode = "invalid_name"

	// CodeUnreachable: the host could not be reached at the network level.
	CodeUnreachable ErrorCode = "unreachable"

	// CodeInternal: any failure not covered by a more specific code.
	CodeInternal ErrorCode = "internal"
)

// Error is the structured failure type crossing the backend boundary.
type Error struct {
	Code ErrorCode
	Op   string // operation that failed, e.g. "sftp.rename"
	Path string // path or identifier involved, may be empty
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Code, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a coded Error with a formatted cause.
func Errorf(code ErrorCode, op, path, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

// WrapError builds a coded Error around err. A nil err yields a nil result
// so call sites can wrap unconditionally.
func WrapError(code ErrorCode, op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Path: path, Err: err}
}

// CodeOf extracts the error code from err, unwrapping as needed. Errors
// without a code report CodeInternal; a nil err reports an empty code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	var hk *HostKeyMismatchError
	if errors.As(err, &hk) {
		return CodeHostKeyMismatch
	}
	return CodeInternal
}

// IsAlreadyExists reports whether err is an already-exists failure, the one
// class the transfer flow may retry with overwrite after confirmation.
func IsAlreadyExists(err error) bool { return CodeOf(err) == CodeAlreadyExists }

// IsSessionClosed reports whether err means the underlying session is gone.
func IsSessionClosed(err error) bool { return CodeOf(err) == CodeSessionClosed }

// IsNotFound reports whether err is a missing-path failure.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsTimeout reports whether err is a deadline failure.
func IsTimeout(err error) bool { return CodeOf(err) == CodeTimeout }

// HostKeyMismatchError is returned by OpenShell when the presented host key
// does not match the pinned one. Token identifies the pending decision held
// by the backend; passing it to AcceptHostKey re-pins the presented key.
type HostKeyMismatchError struct {
	Token                string
	Host                 string
	Port                 int
	StoredKeyType        string
	StoredFingerprint    string
	PresentedKeyType     string
	PresentedFingerprint string
}

func (e *HostKeyMismatchError) Error() string {
	return fmt.Sprintf("host key for %s:%d has changed: stored %s %s, presented %s %s",
		e.Host, e.Port, e.StoredKeyType, e.StoredFingerprint, e.PresentedKeyType, e.PresentedFingerprint)
}

// Warning is the operator-facing summary shown in the mismatch prompt.
func (e *HostKeyMismatchError) Warning() string {
	return fmt.Sprintf("Host key for %s:%d has changed. This can indicate a server reinstall or a man-in-the-middle attack.", e.Host, e.Port)
}

// AsHostKeyMismatch unwraps err to a HostKeyMismatchError if it is one.
func AsHostKeyMismatch(err error) (*HostKeyMismatchError, bool) {
	var hk *HostKeyMismatchError
	if errors.As(err, &hk) {
		return hk, true
	}
	return nil, false
}
