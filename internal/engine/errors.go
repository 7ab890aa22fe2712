package engine

// Kind is a closed set of error tags, each carrying a fixed message and
// a default HTTP status (spec §4.1).
type Kind int

const (
	KindBodyTooLarge Kind = iota
	KindAborted
	KindSizeMismatch
	KindInvalidJSON
	KindServerError
	// KindValidationFailed is additive (SPEC_FULL §4.1): produced only by
	// HttpContext.Bind, never by BodyParser/ResponseStreamer or the reply
	// paths.
	KindValidationFailed
)

var kindMessage = map[Kind]string{
	KindBodyTooLarge:      "Request body too large",
	KindAborted:           "Request aborted",
	KindSizeMismatch:      "Request body size mismatch",
	KindInvalidJSON:       "Invalid JSON",
	KindServerError:       "Internal Server Error",
	KindValidationFailed:  "Validation failed",
}

var kindStatus = map[Kind]int{
	KindBodyTooLarge:     413,
	KindAborted:          418,
	KindSizeMismatch:     400,
	KindInvalidJSON:      400,
	KindServerError:      500,
	KindValidationFailed: 400,
}

// Error is the immutable value for one Kind. The package-level Err*
// values are shared pointers that errors.Is matches by identity; a copy
// made by WithMessage keeps the Kind and Status but does not match the
// original under errors.Is, so such copies are told apart via Kind().
type Error struct {
	kind    Kind
	message string
	status  int
}

func (e *Error) Error() string { return e.message }

// Kind reports which closed-set tag this error carries.
func (e *Error) Kind() Kind { return e.kind }

// Status reports the default HTTP status for this error.
func (e *Error) Status() int { return e.status }

// WithMessage returns a copy of e carrying a different message but the
// same Kind and Status — used by the binding helper to report which
// field failed validation without growing the closed set.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{kind: e.kind, message: msg, status: e.status}
}

var (
	ErrBodyTooLarge     = &Error{KindBodyTooLarge, kindMessage[KindBodyTooLarge], kindStatus[KindBodyTooLarge]}
	ErrAborted          = &Error{KindAborted, kindMessage[KindAborted], kindStatus[KindAborted]}
	ErrSizeMismatch     = &Error{KindSizeMismatch, kindMessage[KindSizeMismatch], kindStatus[KindSizeMismatch]}
	ErrInvalidJSON      = &Error{KindInvalidJSON, kindMessage[KindInvalidJSON], kindStatus[KindInvalidJSON]}
	ErrServerError      = &Error{KindServerError, kindMessage[KindServerError], kindStatus[KindServerError]}
	ErrValidationFailed = &Error{KindValidationFailed, kindMessage[KindValidationFailed], kindStatus[KindValidationFailed]}
)

// StatusError is implemented by any user error that wants to carry its
// own HTTP status, per spec §4.1 ("a value carrying a finite integer
// 'status' field"). Errors that don't implement it fall back to 500.
type StatusError interface {
	error
	Status() int
}

// statusAndMessage resolves the response status/message pair for any
// error reaching the context boundary (spec §7 surfacing policy).
func statusAndMessage(err error) (int, string) {
	if se, ok := err.(StatusError); ok {
		return se.Status(), se.Error()
	}
	return ErrServerError.Status(), ErrServerError.Error()
}
