// Package command maps recognized utterances to actions. Matching is
// keyword-based: each registered entry carries a substring pattern and
// a priority, and the highest-priority entry whose pattern appears in
// the utterance wins. Swap this out for an LLM-backed router when
// ready.
package command

import (
	"context"
	"sort"
	"strings"

	"github.com/hbenali/friday/internal/logger"
)

// Fallback responses. Handler panics become apologies instead of
// taking down the assistant loop.
const (
	ResponseUnknown = "I didn't recognize that command."
	ResponsePanic   = "I'm sorry, something went wrong handling that command."
)

// Handler executes one command. It receives the normalized utterance
// and returns the text to speak back. An error becomes a spoken error
// message; it never crosses the router boundary.
type Handler func(ctx context.Context, cmd string) (string, error)

// Entry is one registered command pattern.
type Entry struct {
	Pattern  string // substring matched against the normalized utterance
	Priority int    // higher wins; ties resolve by registration order
	Handler  Handler
	Help     string // one-line usage shown by the help command
}

// Router dispatches utterances to handlers.
type Router struct {
	log     *logger.Logger
	entries []Entry
	sorted  bool
}

// NewRouter creates an empty router. Register entries before Process.
func NewRouter(log *logger.Logger) *Router {
	return &Router{log: log}
}

// Register adds entries. Patterns are matched case-insensitively as
// substrings, so "research" must outrank "search" to be reachable.
func (r *Router) Register(entries ...Entry) {
	r.entries = append(r.entries, entries...)
	r.sorted = false
}

// Entries returns the registered entries in dispatch order.
func (r *Router) Entries() []Entry {
	r.ensureSorted()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Router) ensureSorted() {
	if r.sorted {
		return
	}
	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].Priority > r.entries[j].Priority
	})
	r.sorted = true
}

// Process normalizes the utterance, finds the winning entry, and runs
// its handler. Always returns something speakable; the bool reports
// whether any pattern matched.
func (r *Router) Process(ctx context.Context, text string) (response string, matched bool) {
	cmd := strings.ToLower(strings.TrimSpace(text))
	if cmd == "" {
		return ResponseUnknown, false
	}
	r.ensureSorted()

	for _, e := range r.entries {
		if !strings.Contains(cmd, e.Pattern) {
			continue
		}
		r.log.Debug("command: %q matched pattern %q (priority=%d)", cmd, e.Pattern, e.Priority)
		return r.run(ctx, e, cmd), true
	}

	r.log.Debug("command: no match for %q", cmd)
	return ResponseUnknown, false
}

// run invokes a handler with panic containment.
func (r *Router) run(ctx context.Context, e Entry, cmd string) (response string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("command: handler for %q panicked: %v", e.Pattern, rec)
			response = ResponsePanic
		}
	}()

	resp, err := e.Handler(ctx, cmd)
	if err != nil {
		r.log.Warn("command: handler for %q failed: %v", e.Pattern, err)
		return "Error: " + err.Error()
	}
	return resp
}
