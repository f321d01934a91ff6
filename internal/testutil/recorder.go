package testutil

import (
	"context"
	"sync"

	"github.com/benn-herrera/litebind/toolchain"
)

// Recorder stands in for toolchain.OSRunner: it records each command and
// lets Handle produce the files and output the real tool would.
type Recorder struct {
	Handle func(toolchain.Command) ([]byte, error)

	mu    sync.Mutex
	calls []toolchain.Command
}

func (r *Recorder) Run(ctx context.Context, c toolchain.Command) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Handle == nil {
		return nil, nil
	}
	return r.Handle(c)
}

// Calls returns a copy of the recorded invocations.
func (r *Recorder) Calls() []toolchain.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]toolchain.Command(nil), r.calls...)
}

// Named returns the recorded invocations of the named tool.
func (r *Recorder) Named(name string) []toolchain.Command {
	var out []toolchain.Command
	for _, c := range r.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
