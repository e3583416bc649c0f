package entities

// OutcomeKind tags the variant of an Outcome.
type OutcomeKind uint8

const (
	// OutcomeInvalid is the zero value. Returning it from Fuzz is a plugin bug.
	OutcomeInvalid OutcomeKind = iota
	// OutcomeInPlace means the input buffer was modified in place.
	OutcomeInPlace
	// OutcomeNewBuffer means the mutator produced a replacement buffer.
	OutcomeNewBuffer
	// OutcomeFail asks the host to fail fast (NULL output, length 0).
	OutcomeFail
)

// String returns the metric/log label of the kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeInPlace:
		return "in_place"
	case OutcomeNewBuffer:
		return "new_buffer"
	case OutcomeFail:
		return "fail"
	default:
		return "invalid"
	}
}

// Outcome is the result of a single Fuzz call.
type Outcome struct {
	buf  []byte
	kind OutcomeKind
}

// InPlace reports that the input buffer was modified in place.
// The length seen by the host is the length of the input buffer.
func InPlace() Outcome {
	return Outcome{kind: OutcomeInPlace}
}

// NewBuffer reports a replacement buffer.
// The bridge copies it before returning to the host unless it is a prefix of
// the input buffer, so the mutator may reuse buf on the next call.
func NewBuffer(buf []byte) Outcome {
	return Outcome{kind: OutcomeNewBuffer, buf: buf}
}

// Fail reports a mutation failure.
func Fail() Outcome {
	return Outcome{kind: OutcomeFail}
}

// Kind returns the outcome variant.
func (o Outcome) Kind() OutcomeKind {
	return o.kind
}

// Buffer returns the replacement buffer of a NewBuffer outcome, nil otherwise.
func (o Outcome) Buffer() []byte {
	if o.kind != OutcomeNewBuffer {
		return nil
	}
	return o.buf
}
