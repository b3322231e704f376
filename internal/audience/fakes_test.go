package audience

import (
	"context"

	"github.com/afikmenashe/alert-distribution/internal/alert"
)

// FakeDirectory is a test fake for Directory.
type FakeDirectory struct {
	Entries []alert.Recipient
	Err     error
	Calls   int
}

func (f *FakeDirectory) ListRecipients(ctx context.Context) ([]alert.Recipient, error) {
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]alert.Recipient, len(f.Entries))
	copy(out, f.Entries)
	return out, nil
}
