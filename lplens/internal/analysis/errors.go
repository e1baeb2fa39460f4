package analysis

import "fmt"

// ParseError reports a reasoning-service reply that does not hold a valid
// Result: no JSON object, malformed JSON, or a schema violation.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis: parse reply: %s: %v", e.Reason, e.Err)
	}
	return "analysis: parse reply: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// ServiceError reports a failed call to the reasoning service: transport
// failure, non-2xx status, open circuit or an unexpected reply envelope.
type ServiceError struct {
	Protocol Protocol
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("analysis: %s service: %v", e.Protocol, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }
