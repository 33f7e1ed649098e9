package csrf

// Code is the machine-readable error code attached to every CSRF
// rejection, matching what API clients dispatch on.
const Code = "EBADCSRFTOKEN"

// Kind classifies a CSRF validation failure.
type Kind int

const (
	// KindMissingCredentials means the unsafe request lacked a session key
	// or a candidate token.
	KindMissingCredentials Kind = iota + 1

	// KindInvalidToken means a candidate token was presented but does not
	// match a live stored record. Wrong value, expired record and absent
	// record are deliberately indistinguishable to the caller.
	KindInvalidToken
)

func (k Kind) String() string {
	switch k {
	case KindMissingCredentials:
		return "missing credentials"
	case KindInvalidToken:
		return "invalid token"
	default:
		return "unknown"
	}
}

// Error is a CSRF validation failure. It always maps to HTTP 403; the
// boundary error handler decides between a JSON payload and an HTML page.
type Error struct {
	Kind Kind
}

func (e *Error) Error() string {
	return Code + ": " + e.Kind.String()
}
