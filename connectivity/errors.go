package connectivity

import "fmt"

// ErrCircuitOpen is returned when the breaker for a service rejects a call
// without attempting it.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("connectivity: circuit open: %s", e.Service)
}

// ErrHTTPStatus is returned by HTTP handlers for non-2xx responses.
type ErrHTTPStatus struct {
	Code int
	Body string
}

func (e *ErrHTTPStatus) Error() string {
	return fmt.Sprintf("connectivity/http: status %d: %s", e.Code, e.Body)
}

// ErrPanic wraps a recovered panic value as an error.
type ErrPanic struct {
	Value any
}

func (e *ErrPanic) Error() string {
	return "connectivity: handler panicked"
}
