package restore

// Kind classifies why a restore failed.
type Kind string

const (
	// KindPreflight failures happen before the live site is touched.
	KindPreflight Kind = "preflight"
	KindArchive   Kind = "archive"
	KindSwap      Kind = "swap"
	KindImport    Kind = "import"
)

// Error is returned for every accepted restore that did not complete.
type Error struct {
	Kind  Kind
	State State
	Err   error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func fail(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
