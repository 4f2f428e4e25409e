// Package textgentest provides a scripted textgen.Service for tests.
package textgentest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ShayCichocki/modernity/internal/textgen"
)

// Responder produces the answer for one request.
type Responder func(ctx context.Context, req textgen.Request) (string, error)

// Fake routes requests to responders keyed by Request.Purpose and records calls.
// It is safe for concurrent use.
type Fake struct {
	mu         sync.Mutex
	responders map[string]Responder
	calls      []textgen.Request
}

// New creates an empty Fake. Unscripted purposes return an error.
func New() *Fake {
	return &Fake{responders: make(map[string]Responder)}
}

// On registers a responder for a purpose and returns the fake for chaining.
func (f *Fake) On(purpose string, r Responder) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responders[purpose] = r
	return f
}

// Reply registers a fixed text answer for a purpose.
func (f *Fake) Reply(purpose, text string) *Fake {
	return f.On(purpose, func(context.Context, textgen.Request) (string, error) {
		return text, nil
	})
}

// Fail registers a fixed error for a purpose.
func (f *Fake) Fail(purpose string, err error) *Fake {
	return f.On(purpose, func(context.Context, textgen.Request) (string, error) {
		return "", err
	})
}

// Invoke implements textgen.Service.
func (f *Fake) Invoke(ctx context.Context, req textgen.Request) (textgen.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	r, ok := f.responders[req.Purpose]
	f.mu.Unlock()

	if !ok {
		return textgen.Response{}, fmt.Errorf("textgentest: no responder for purpose %q", req.Purpose)
	}
	if err := ctx.Err(); err != nil {
		return textgen.Response{}, err
	}
	text, err := r(ctx, req)
	if err != nil {
		return textgen.Response{}, err
	}
	return textgen.Response{Text: text}, nil
}

// Calls returns a copy of every recorded request.
func (f *Fake) Calls() []textgen.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]textgen.Request, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many requests carried the given purpose.
func (f *Fake) CallCount(purpose string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Purpose == purpose {
			n++
		}
	}
	return n
}
