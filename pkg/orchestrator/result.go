package orchestrator

// AuthFailedMessage is the user-visible message for a failed
// credential exchange. The underlying detail stays in Err and in the
// logs; it is not surfaced to end users.
const AuthFailedMessage = "authentication failed"

// Result is the single externally observable output of one
// orchestration cycle: a final answer or a structured error. It is
// always well-formed; callers never go without a response.
type Result struct {
	Answer   string
	Degraded bool

	Err     error
	Message string
}

// OK reports whether the cycle produced an answer.
func (r Result) OK() bool {
	return r.Err == nil
}

// ErrorMessage returns the user-visible error text, empty on success.
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	if r.Message != "" {
		return r.Message
	}
	return r.Err.Error()
}
