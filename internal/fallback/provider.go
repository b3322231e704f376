// Package fallback sends an email when a live push could not reach the recipient.
// Email providers are registered with a primary and ordered fallbacks.
package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// EmailRequest represents an email to be sent.
type EmailRequest struct {
	From    string
	To      []string
	Subject string
	Body    string // Plain text body
	HTML    string // HTML body (optional)
}

// Provider is the interface that all email providers must implement.
type Provider interface {
	// Name returns the provider name (e.g., "ses", "resend")
	Name() string

	// Send sends an email using this provider.
	Send(ctx context.Context, req *EmailRequest) error

	// IsConfigured returns true if the provider is properly configured.
	IsConfigured() bool
}

// Registry manages email providers with fallback support.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
	primary   string
	fallback  []string
}

// NewRegistry creates a new email provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider to the registry.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[provider.Name()]; !ok {
		r.order = append(r.order, provider.Name())
	}
	r.providers[provider.Name()] = provider
	slog.Info("Registered email provider", "name", provider.Name(), "configured", provider.IsConfigured())
}

// SetPrimary sets the primary provider by name.
func (r *Registry) SetPrimary(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("provider %q not registered", name)
	}
	r.primary = name
	return nil
}

// SetFallback sets the fallback providers in order.
func (r *Registry) SetFallback(names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if _, ok := r.providers[name]; !ok {
			return fmt.Errorf("provider %q not registered", name)
		}
	}
	r.fallback = names
	return nil
}

// candidates returns configured providers in the order they should be tried:
// primary, fallbacks, then any other configured provider in registration order.
func (r *Registry) candidates() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []Provider
	add := func(name string) {
		p, ok := r.providers[name]
		if !ok || seen[name] || !p.IsConfigured() {
			return
		}
		seen[name] = true
		out = append(out, p)
	}
	if r.primary != "" {
		add(r.primary)
	}
	for _, name := range r.fallback {
		add(name)
	}
	for _, name := range r.order {
		add(name)
	}
	return out
}

// Configured reports whether any registered provider can send.
func (r *Registry) Configured() bool {
	return len(r.candidates()) > 0
}

// Send sends through the first provider that succeeds. The primary's error is
// returned when every provider fails.
func (r *Registry) Send(ctx context.Context, req *EmailRequest) error {
	providers := r.candidates()
	if len(providers) == 0 {
		return fmt.Errorf("no configured email provider available")
	}

	var firstErr error
	for i, p := range providers {
		err := p.Send(ctx, req)
		if err == nil {
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
		if i+1 < len(providers) {
			slog.Warn("Email provider failed, trying next",
				"provider", p.Name(),
				"next", providers[i+1].Name(),
				"error", err,
			)
		}
	}
	return firstErr
}
