package fallback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// ResendProvider implements email sending via Resend API.
type ResendProvider struct {
	client *resend.Client
}

// NewResendProvider creates a Resend provider. An empty API key yields an
// unconfigured provider.
func NewResendProvider(apiKey string) *ResendProvider {
	if apiKey == "" {
		slog.Warn("Resend API key not set, Resend provider will be unavailable")
		return &ResendProvider{}
	}
	slog.Info("Resend email provider initialized")
	return &ResendProvider{client: resend.NewClient(apiKey)}
}

// Name returns the provider name.
func (p *ResendProvider) Name() string {
	return "resend"
}

// IsConfigured returns true if Resend is properly configured.
func (p *ResendProvider) IsConfigured() bool {
	return p.client != nil
}

// Send sends an email via Resend API.
func (p *ResendProvider) Send(ctx context.Context, req *EmailRequest) error {
	if p.client == nil {
		return fmt.Errorf("Resend client not initialized")
	}
	if len(req.To) == 0 {
		return fmt.Errorf("no recipients specified")
	}

	params := &resend.SendEmailRequest{
		From:    req.From,
		To:      req.To,
		Subject: req.Subject,
	}
	// Prefer HTML if available, otherwise use plain text
	if req.HTML != "" {
		params.Html = req.HTML
	} else {
		params.Text = req.Body
	}

	result, err := p.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("Resend send failed: %w", err)
	}

	slog.Info("Email sent via Resend",
		"email_id", result.Id,
		"to", req.To,
	)
	return nil
}
