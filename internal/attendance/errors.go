package attendance

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a rejected or failed attendance operation.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnregisteredIdentity
	KindBreakTooShort
	KindSessionLimitReached
	KindPersistenceUnavailable
	KindMalformedTimestamp
)

var kindNames = map[Kind]string{
	KindUnknown:                "unknown",
	KindUnregisteredIdentity:   "unregistered_identity",
	KindBreakTooShort:          "break_too_short",
	KindSessionLimitReached:    "session_limit_reached",
	KindPersistenceUnavailable: "persistence_unavailable",
	KindMalformedTimestamp:     "malformed_timestamp",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var (
	ErrUnregisteredIdentity   = errors.New("identity is not registered")
	ErrBreakTooShort          = errors.New("minimum break not reached")
	ErrSessionLimitReached    = errors.New("all slots for the day are closed")
	ErrPersistenceUnavailable = errors.New("attendance storage unavailable")
	ErrMalformedTimestamp     = errors.New("malformed timestamp")
)

func (k Kind) sentinel() error {
	switch k {
	case KindUnregisteredIdentity:
		return ErrUnregisteredIdentity
	case KindBreakTooShort:
		return ErrBreakTooShort
	case KindSessionLimitReached:
		return ErrSessionLimitReached
	case KindPersistenceUnavailable:
		return ErrPersistenceUnavailable
	case KindMalformedTimestamp:
		return ErrMalformedTimestamp
	default:
		return nil
	}
}

// PunchError is a typed rejection of a punch. errors.Is matches both the
// kind's sentinel and the wrapped cause.
type PunchError struct {
	Kind     Kind
	Identity string
	Date     time.Time
	Slot     int           // 1-based slot number, 0 if not applicable
	Elapsed  time.Duration // BreakTooShort only
	Required time.Duration // BreakTooShort only
	Err      error
}

func (e *PunchError) Error() string {
	var b strings.Builder
	if s := e.Kind.sentinel(); s != nil {
		b.WriteString(s.Error())
	} else {
		b.WriteString("attendance operation failed")
	}
	if e.Identity != "" {
		fmt.Fprintf(&b, ": %s", e.Identity)
	}
	if !e.Date.IsZero() {
		fmt.Fprintf(&b, " on %s", e.Date.Format("2006-01-02"))
	}
	if e.Slot > 0 {
		fmt.Fprintf(&b, " slot %d", e.Slot)
	}
	if e.Kind == KindBreakTooShort {
		fmt.Fprintf(&b, " (%s elapsed, %s required)", e.Elapsed, e.Required)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *PunchError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Retryable reports whether the same punch may succeed later.
func (e *PunchError) Retryable() bool {
	return e.Kind == KindBreakTooShort || e.Kind == KindPersistenceUnavailable
}

// RetryAfter is how long the caller should wait before the punch can be
// accepted. It is zero unless the kind is BreakTooShort.
func (e *PunchError) RetryAfter() time.Duration {
	if e.Kind != KindBreakTooShort || e.Required <= e.Elapsed {
		return 0
	}
	return e.Required - e.Elapsed
}

// KindOf extracts the Kind of err. Plain sentinel errors are recognized too.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var pe *PunchError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	for k := KindUnregisteredIdentity; k <= KindMalformedTimestamp; k++ {
		if errors.Is(err, k.sentinel()) {
			return k
		}
	}
	return KindUnknown
}

func persistenceError(identity string, date time.Time, err error) *PunchError {
	return &PunchError{Kind: KindPersistenceUnavailable, Identity: identity, Date: date, Err: err}
}
