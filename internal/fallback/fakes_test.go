package fallback

import (
	"context"
	"sync"

	"github.com/afikmenashe/alert-distribution/internal/alert"
)

// FakeProvider records sent emails.
type FakeProvider struct {
	mu         sync.Mutex
	name       string
	configured bool
	Err        error
	Block      chan struct{}
	sent       []*EmailRequest
}

func NewFakeProvider(name string, configured bool) *FakeProvider {
	return &FakeProvider{name: name, configured: configured}
}

func (f *FakeProvider) Name() string       { return f.name }
func (f *FakeProvider) IsConfigured() bool { return f.configured }

func (f *FakeProvider) Send(ctx context.Context, req *EmailRequest) error {
	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.sent = append(f.sent, req)
	return nil
}

func (f *FakeProvider) Sent() []*EmailRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*EmailRequest(nil), f.sent...)
}

// FakeLookup serves recipients from a map.
type FakeLookup map[string]alert.Recipient

func (f FakeLookup) Lookup(_ context.Context, id string) (*alert.Recipient, error) {
	r, ok := f[id]
	if !ok {
		return nil, alert.ErrNotFound
	}
	return &r, nil
}
