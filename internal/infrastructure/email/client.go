// Package email provides the email client for sending transactional emails.
package email

import (
	"errors"
	"fmt"

	"github.com/resendlabs/resend-go"

	"github.com/AtRiskMedia/drillgate/internal/infrastructure/email/templates"
)

// Service defines the interface for sending emails, allowing for mock implementations in tests.
type Service interface {
	SendWelcomeEmail(toEmail string, brokerThreshold int) error
}

// Sender is the subset of the Resend client used here.
type Sender interface {
	Send(params *resend.SendEmailRequest) (resend.SendEmailResponse, error)
}

// ResendClient is the concrete implementation of the email Service using the Resend API.
type ResendClient struct {
	sender    Sender
	fromEmail string
	fromName  string
	siteURL   string
}

// Options configure NewService.
type Options struct {
	APIKey    string
	FromEmail string
	FromName  string
	SiteURL   string
}

// NewService creates a new email service client, returning the Service interface.
func NewService(opts Options) (Service, error) {
	if opts.APIKey == "" {
		return nil, errors.New("RESEND_API_KEY is required")
	}
	client := resend.NewClient(opts.APIKey)
	return NewResendClient(client.Emails, opts), nil
}

// NewResendClient builds a client around sender.
func NewResendClient(sender Sender, opts Options) *ResendClient {
	return &ResendClient{
		sender:    sender,
		fromEmail: opts.FromEmail,
		fromName:  opts.FromName,
		siteURL:   opts.SiteURL,
	}
}

// SendWelcomeEmail composes and sends the welcome email.
func (c *ResendClient) SendWelcomeEmail(toEmail string, brokerThreshold int) error {
	content, err := templates.GetWelcomeEmailContent(templates.WelcomeEmailProps{
		LibraryURL:      c.siteURL,
		BrokerThreshold: brokerThreshold,
	})
	if err != nil {
		return fmt.Errorf("render welcome email: %w", err)
	}

	htmlContent, err := templates.GetEmailLayout(templates.EmailLayoutProps{
		Preheader:  "Your drill library access is ready",
		Content:    content,
		FooterText: "You are receiving this because you unlocked drills with this address.",
		SiteURL:    c.siteURL,
	})
	if err != nil {
		return fmt.Errorf("render email layout: %w", err)
	}

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", c.fromName, c.fromEmail),
		To:      []string{toEmail},
		Subject: "Your drill library access",
		Html:    htmlContent,
	}

	if _, err := c.sender.Send(params); err != nil {
		return fmt.Errorf("failed to send welcome email via Resend: %w", err)
	}
	return nil
}
