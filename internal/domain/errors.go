package domain

import (
	"fmt"
	"strings"
)

// DiagnosticLimit caps diagnostic text captured from failed deliveries.
const DiagnosticLimit = 200

// ParseError reports a row that violates the input data contract.
// It is fatal for the run.
type ParseError struct {
	Row   int // 1-based data row, header excluded
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("row %d: field %s: %v", e.Row, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// HeaderError reports required columns missing from the input header.
type HeaderError struct {
	Missing []string
}

func (e *HeaderError) Error() string {
	return "missing required columns: " + strings.Join(e.Missing, ", ")
}

// TransportError wraps a network, timeout, or response-decoding fault during
// a batch delivery.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport: " + Truncate(e.Err.Error(), DiagnosticLimit)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectionError is returned when the store answers with a status other than
// 200, 201 or 409. Direct database sinks report the SQLSTATE in Code and
// leave Status zero.
type RejectionError struct {
	Status int
	Code   string
	Body   string
}

func (e *RejectionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("rejected: sqlstate %s: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("rejected: status %d: %s", e.Status, e.Body)
}

// VerificationError wraps a failed post-upload count query.
type VerificationError struct {
	Err error
}

func (e *VerificationError) Error() string {
	return "verify: " + e.Err.Error()
}

func (e *VerificationError) Unwrap() error { return e.Err }

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
