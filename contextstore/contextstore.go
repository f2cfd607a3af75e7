// Package contextstore implements the append-only conversation log each
// agent reads and writes: an in-memory working view backed by two JSONL
// files, a role-collapsing add operation, a model-shaped marshaled view,
// and word-budget-driven summarization.
package contextstore

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Role is one of the four semantic message roles.
type Role string

const (
	RoleUser        Role = "user"
	RoleAssistant   Role = "assistant"
	RoleEnvironment Role = "environment"
	RoleCommand     Role = "command"
)

// BlockType discriminates a Block's payload.
type BlockType string

const (
	BlockText  BlockType = "text"
	BlockImage BlockType = "image"
)

// Block is a tagged union over {text, image}, matching the wire shape the
// model adapter and the browser both consume: {"type":"text","text":"..."}
// or {"type":"image","source":{"type":"base64","media_type":"image/png","data":"..."}}.
type Block struct {
	Type   BlockType    `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource carries a base64-encoded PNG, Anthropic content-block shaped.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// TextBlock constructs a text content block.
func TextBlock(text string) Block {
	return Block{Type: BlockText, Text: text}
}

// ImageBlock constructs an image content block from raw PNG bytes.
func ImageBlock(png []byte) Block {
	return Block{
		Type: BlockImage,
		Source: &ImageSource{
			Type:      "base64",
			MediaType: "image/png",
			Data:      base64.StdEncoding.EncodeToString(png),
		},
	}
}

// Message is a (role, [block, ...]) pair. The message list — in memory and
// on disk — never contains two adjacent messages with the same role; see
// Store.Add.
type Message struct {
	Role    Role    `json:"role"`
	Content []Block `json:"content"`
}

const summarizedContextPrefix = "SUMMARIZED CONTEXT: "

// keepaliveText is injected as an environment message when marshal() would
// otherwise end on an assistant turn, so the model is always asked to
// respond to a user turn.
const keepaliveText = "AUTOMATED MESSAGE\nkeep working. whether that is more thinking, or terminal control, or GUI control"

// wordsPerImage is the word-count weight given to one image block:
// "a picture is worth a thousand words" drives summarization the same way
// a screenshot-heavy context would drive up actual token usage.
const wordsPerImage = 1000

// Store manages one agent's conversation: an in-memory message list and
// its two on-disk mirrors, original.jsonl (append-only archive) and
// working.jsonl (rewritten wholesale on summarization).
type Store struct {
	dir          string
	maxWords     int
	preserveLast int
	logger       *slog.Logger

	messages []Message
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a structured logger. Defaults to a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMaxWords overrides the default summarization word budget.
func WithMaxWords(n int) Option {
	return func(s *Store) { s.maxWords = n }
}

// WithPreserveLast overrides how many trailing messages survive a summary.
func WithPreserveLast(n int) Option {
	return func(s *Store) { s.preserveLast = n }
}

// Open creates (if absent) the context directory at dir and loads
// working.jsonl into memory, falling back to an empty list.
func Open(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		dir:          dir,
		maxWords:     30000,
		preserveLast: 5,
		logger:       nopLogger,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("contextstore: create dir: %w", err)
	}
	for _, name := range []string{"original.jsonl", "working.jsonl"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); os.IsNotExist(err) {
			if err := os.WriteFile(p, nil, 0o644); err != nil {
				return nil, fmt.Errorf("contextstore: touch %s: %w", name, err)
			}
		}
	}

	msgs, err := readJSONL(s.workingPath())
	if err != nil {
		return nil, fmt.Errorf("contextstore: load working.jsonl: %w", err)
	}
	s.messages = msgs
	s.logger.Info("context store opened", "dir", dir, "messages", len(msgs))
	return s, nil
}

func (s *Store) originalPath() string { return filepath.Join(s.dir, "original.jsonl") }
func (s *Store) workingPath() string  { return filepath.Join(s.dir, "working.jsonl") }
func (s *Store) kvPath() string       { return filepath.Join(s.dir, "kv_cache") }

// Messages returns the current in-memory message list. Callers must treat
// it as read-only; Add appends to it (extending the tail message in place
// on a role match) and ApplySummary replaces it wholesale.
func (s *Store) Messages() []Message {
	return s.messages
}

// Add appends one content block under role, applying the collapse
// invariant: if the tail message (in memory, and independently the tail
// line of each file) already has this role, the block is appended to it
// instead of starting a new message.
func (s *Store) Add(role Role, block Block) error {
	s.messages = collapseAppend(s.messages, role, block)

	for _, path := range []string{s.originalPath(), s.workingPath()} {
		if err := appendWithCollapse(path, role, block); err != nil {
			return fmt.Errorf("contextstore: append to %s: %w", path, err)
		}
	}
	return nil
}

// collapseAppend appends block to msgs under role, merging into the tail
// message when its role matches.
func collapseAppend(msgs []Message, role Role, block Block) []Message {
	if n := len(msgs); n > 0 && msgs[n-1].Role == role {
		msgs[n-1].Content = append(msgs[n-1].Content, block)
		return msgs
	}
	return append(msgs, Message{Role: role, Content: []Block{block}})
}

// appendWithCollapse implements the dual-log append: read the last
// physical line, and either rewrite it (role match) or append a new line.
func appendWithCollapse(path string, role Role, block Block) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	text := strings.TrimRight(string(data), "\n")
	var lines []string
	if text != "" {
		lines = strings.Split(text, "\n")
	}

	if len(lines) > 0 {
		var last Message
		if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
			return err
		}
		if last.Role == role {
			last.Content = append(last.Content, block)
			encoded, err := json.Marshal(last)
			if err != nil {
				return err
			}
			lines[len(lines)-1] = string(encoded)
			return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
		}
	}

	encoded, err := json.Marshal(Message{Role: role, Content: []Block{block}})
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(encoded, '\n'))
	return err
}

// Marshal produces the model-shaped view: environment->user, command->
// assistant, recollapsed. If the context (after this remapping) would end
// on an assistant message, a keepalive environment message is appended to
// the live context and both logs before marshaling, so the returned view
// always ends with a user message.
func (s *Store) Marshal() ([]Message, error) {
	if n := len(s.messages); n > 0 {
		last := s.messages[n-1].Role
		if last == RoleAssistant || last == RoleCommand {
			if err := s.Add(RoleEnvironment, TextBlock(keepaliveText)); err != nil {
				return nil, err
			}
		}
	}

	var out []Message
	for _, msg := range s.messages {
		role := remapRole(msg.Role)
		for _, block := range msg.Content {
			out = collapseAppend(out, role, block)
		}
	}
	return out, nil
}

func remapRole(r Role) Role {
	switch r {
	case RoleEnvironment:
		return RoleUser
	case RoleCommand:
		return RoleAssistant
	default:
		return r
	}
}

// WordCount sums whitespace-separated tokens over every text block, plus
// wordsPerImage for every image block.
func (s *Store) WordCount() int {
	total := 0
	for _, msg := range s.messages {
		for _, block := range msg.Content {
			switch block.Type {
			case BlockText:
				total += len(strings.Fields(block.Text))
			case BlockImage:
				total += wordsPerImage
			}
		}
	}
	return total
}

// NeedsSummary reports whether WordCount has reached the configured budget.
func (s *Store) NeedsSummary() bool {
	return s.WordCount() >= s.maxWords
}

// ApplySummary replaces working memory with a single synthetic assistant
// message ("SUMMARIZED CONTEXT: " + text) followed by the last
// preserveLast messages. No-op if the current message count is already at
// or below preserveLast. The summary is additionally appended to
// original.jsonl (the archive never truncates); working.jsonl is then
// rewritten from scratch to match the new in-memory list.
func (s *Store) ApplySummary(text string) error {
	if len(s.messages) <= s.preserveLast {
		return nil
	}
	tail := s.messages[len(s.messages)-s.preserveLast:]

	summaryBlock := TextBlock(summarizedContextPrefix + text)
	if err := appendWithCollapse(s.originalPath(), RoleAssistant, summaryBlock); err != nil {
		return fmt.Errorf("contextstore: archive summary: %w", err)
	}

	rebuilt := []Message{{Role: RoleAssistant, Content: []Block{summaryBlock}}}
	for _, msg := range tail {
		for _, block := range msg.Content {
			rebuilt = collapseAppend(rebuilt, msg.Role, block)
		}
	}
	s.messages = rebuilt

	if err := writeJSONL(s.workingPath(), rebuilt); err != nil {
		return fmt.Errorf("contextstore: rewrite working.jsonl: %w", err)
	}
	s.logger.Info("context summarized", "dir", s.dir, "messages", len(rebuilt))
	return nil
}

// LoadKV returns the persisted opaque inference-cache blob, or nil if
// none is present.
func (s *Store) LoadKV() ([]byte, error) {
	data, err := os.ReadFile(s.kvPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

// SaveKV persists kv, or removes the file when kv is nil.
func (s *Store) SaveKV(kv []byte) error {
	if kv == nil {
		err := os.Remove(s.kvPath())
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.WriteFile(s.kvPath(), kv, 0o644)
}

func readJSONL(path string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var msgs []Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, scanner.Err()
}

func writeJSONL(path string, msgs []Message) error {
	var b strings.Builder
	for _, msg := range msgs {
		encoded, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		b.Write(encoded)
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
