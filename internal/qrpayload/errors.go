package qrpayload

import "strings"

// Attempt records why one wire format refused a payload.
type Attempt struct {
	Format Format
	Reason string
}

// DecodeError means no supported wire format accepted the scanned text.
// It keeps the full attempt trail so the UI can tell a user scanning
// the wrong kind of code exactly what was tried.
type DecodeError struct {
	Input    string
	Attempts []Attempt
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString("unrecognized payload")
	for i, a := range e.Attempts {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(string(a.Format))
		b.WriteString(": ")
		b.WriteString(a.Reason)
	}
	return b.String()
}
