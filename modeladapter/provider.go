// Package modeladapter is the boundary between the turn engine and
// whatever LLM actually drives an agent. A Provider sees only the
// marshaled message view the context store produces — it never touches
// role-collapse or summarization bookkeeping.
package modeladapter

import (
	"context"

	"github.com/codespaceDrifter/intvrface/contextstore"
)

// Provider is the contract every model backend implements: one call to
// drive a turn, one to compress a context that has outgrown its budget.
//
// kv is an opaque inference-cache handle round-tripped through
// contextstore.Store.LoadKV/SaveKV. Providers that expose no such cache
// (every hosted API so far) always return a nil kv.
type Provider interface {
	Respond(ctx context.Context, messages []contextstore.Message, kv []byte) (text string, newKV []byte, err error)
	Summarize(ctx context.Context, messages []contextstore.Message, kv []byte) (text string, newKV []byte, err error)
}
