package photometer

// Kind classifies photometer failures. It is comparable and implements
// error, so errors.Is(err, ErrRange) works on wrapped errors.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	// ErrConfiguration: invalid, empty or duplicate channel wiring. Fatal at startup.
	ErrConfiguration Kind = "configuration error"
	// ErrRange: intensity or ratio outside its contractual bounds. Fails the single call.
	ErrRange Kind = "range error"
	// ErrStorage: the record log cannot be appended. Recovered locally.
	ErrStorage Kind = "storage error"
	// ErrFault: any other runtime fault while measuring.
	ErrFault Kind = "unexpected fault"
)

// Error keeps the operation and cause alongside the kind.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := string(e.Kind)
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

// Is matches the error's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

func newError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}
