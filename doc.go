// Package intvrface operates a fleet of long-running autonomous desktop
// agents: each agent is an LLM given hands-on control of a sandboxed
// container desktop through screenshots, terminal logs, and synthesized
// keyboard/mouse events.
//
// The root package holds the small set of types shared across every other
// package: tracing contracts ([Tracer], [Span]), typed errors, and ID/time
// helpers. The domain packages are:
//
//   - sandbox — container lifecycle and desktop actuation
//   - command — parses model output into ordered actuator calls
//   - contextstore — append-only conversation log with collapse + summarization
//   - modeladapter — the LLM provider contract and its Claude implementation
//   - turnengine — drives one agent's turn loop
//   - hub — multiplexes many agents onto one websocket broadcast channel
//
// See cmd/intvrface for the process entrypoint that wires them together.
package intvrface
