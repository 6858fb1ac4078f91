package crawler

// AbsentReason explains why an Outcome carries no value.
type AbsentReason string

// Absence reasons. Transport, status, decode and shape are "no data";
// invalid input means the caller passed something unusable.
const (
	ReasonTransport    AbsentReason = "transport"
	ReasonStatus       AbsentReason = "status"
	ReasonDecode       AbsentReason = "decode"
	ReasonShape        AbsentReason = "shape"
	ReasonNotFound     AbsentReason = "not_found"
	ReasonInvalidInput AbsentReason = "invalid_input"
)

// Outcome is either a found value or an absence with a reason.
type Outcome[T any] struct {
	value  T
	reason AbsentReason
	found  bool
}

// Found wraps a value.
func Found[T any](v T) Outcome[T] {
	return Outcome[T]{value: v, found: true}
}

// Absent builds an empty Outcome.
func Absent[T any](reason AbsentReason) Outcome[T] {
	return Outcome[T]{reason: reason}
}

// Get returns the value and whether it was found.
func (o Outcome[T]) Get() (T, bool) {
	return o.value, o.found
}

// OK reports whether a value is present.
func (o Outcome[T]) OK() bool {
	return o.found
}

// Reason returns the absence reason, or "" when a value is present.
func (o Outcome[T]) Reason() AbsentReason {
	if o.found {
		return ""
	}
	return o.reason
}

// String renders the outcome state for logs.
func (o Outcome[T]) String() string {
	if o.found {
		return "found"
	}
	return "absent(" + string(o.reason) + ")"
}

// mapOutcome converts the value of a found outcome and forwards absences.
func mapOutcome[T, U any](o Outcome[T], fn func(T) Outcome[U]) Outcome[U] {
	v, ok := o.Get()
	if !ok {
		return Absent[U](o.reason)
	}
	return fn(v)
}
