package vision

import (
	"context"
	"sync"
)

// Fake answers from a fixed table. URIs missing from the table get Default.
// It is used by tests and by deployments without service credentials.
type Fake struct {
	mu        sync.Mutex
	Responses map[string]Response
	Default   Response
	// Err, when set, fails every call.
	Err   error
	calls [][]string
}

// NewFake returns a Fake whose default answer is Empty.
func NewFake() *Fake {
	return &Fake{Responses: map[string]Response{}, Default: Empty()}
}

func (f *Fake) Annotate(ctx context.Context, uris []string) ([]Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), uris...))
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]Response, len(uris))
	for i, u := range uris {
		if r, ok := f.Responses[u]; ok {
			out[i] = r
		} else {
			out[i] = f.Default
		}
	}
	return out, nil
}

// Calls returns the batches seen so far.
func (f *Fake) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}
