package intvrface

import "fmt"

// ErrProvider reports a failure from a model adapter provider call
// (rate limit, context length, malformed response, transport failure).
type ErrProvider struct {
	Provider string
	Message  string
}

func (e *ErrProvider) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP reports a non-2xx response from the hub's HTTP or websocket surface.
type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ErrCommand reports a malformed or unknown command parsed out of model output.
// Message describes the parse failure; Raw holds the offending span verbatim
// so callers can echo it back to the agent as feedback.
type ErrCommand struct {
	Verb    string
	Message string
	Raw     string
}

func (e *ErrCommand) Error() string {
	if e.Verb == "" {
		return fmt.Sprintf("command: %s", e.Message)
	}
	return fmt.Sprintf("command %s: %s", e.Verb, e.Message)
}

// ErrSandbox reports a failure inside the sandboxed container: build
// failure, a dead container, a timed-out exec, or an actuation that
// targeted a sandbox that was never started.
type ErrSandbox struct {
	AgentID string
	Op      string
	Message string
}

func (e *ErrSandbox) Error() string {
	return fmt.Sprintf("sandbox %s %s: %s", e.AgentID, e.Op, e.Message)
}
