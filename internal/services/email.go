package services

import (
	"context"
	"fmt"
	"log"

	"github.com/resend/resend-go/v2"

	"Bootcamp/internal/config"
)

type EmailService struct {
	Client     *resend.Client
	From       string
	AdminEmail string
}

func NewEmailService(cfg config.ResendConfig) *EmailService {
	log.Printf("📧 Email Service Initialized (Resend)")
	log.Printf("   - From Email: %s", cfg.From)
	log.Printf("   - API Key: %s", maskAPIKey(cfg.APIKey))

	if cfg.APIKey == "" {
		log.Printf("⚠️  WARNING: RESEND_API_KEY is empty!")
	}
	if cfg.AdminEmail == "" {
		log.Printf("⚠️  WARNING: ADMIN_ALERT_EMAIL is empty, key grant alerts are disabled")
	}

	return &EmailService{
		Client:     resend.NewClient(cfg.APIKey),
		From:       cfg.From,
		AdminEmail: cfg.AdminEmail,
	}
}

// Helper function to mask API key for logging
func maskAPIKey(key string) string {
	if len(key) == 0 {
		return "❌ EMPTY"
	}
	if len(key) < 8 {
		return "***"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

func (es *EmailService) send(ctx context.Context, to, subject, html string) error {
	params := &resend.SendEmailRequest{
		From:    es.From,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	}
	sent, err := es.Client.Emails.SendWithContext(ctx, params)
	if err != nil {
		log.Printf("❌ Resend API Error: %v", err)
		return fmt.Errorf("failed to send email: %w", err)
	}
	log.Printf("✅ Email sent successfully to: %s (ID: %s)", to, sent.Id)
	return nil
}

// SendEnrollmentConfirmation tells the applicant their payment cleared.
func (es *EmailService) SendEnrollmentConfirmation(ctx context.Context, to, name, cohortName string) error {
	if name == "" {
		name = "there"
	}
	html := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2>You're in, %s!</h2>
        <p>Your payment was confirmed and you are now enrolled in <strong>%s</strong>.</p>
        <p>If you linked a wallet, your membership key will arrive there shortly.</p>
        <p style="margin-top: 30px; font-size: 12px; color: #666;">This is an automated message, please do not reply.</p>
    </div>
</body>
</html>`, name, cohortName)
	return es.send(ctx, to, "Enrollment confirmed: "+cohortName, html)
}

// SendKeyGrantFailureAlert notifies operators that a grant needs attention.
func (es *EmailService) SendKeyGrantFailureAlert(ctx context.Context, ev KeyGrantFailedEvent) error {
	if es.AdminEmail == "" {
		return nil
	}
	html := fmt.Sprintf(`
<p>A membership key grant failed and needs reconciliation.</p>
<ul>
    <li>User: %s</li>
    <li>Application: %s</li>
    <li>Wallet: %s</li>
    <li>Lock: %s</li>
    <li>Attempts: %d</li>
    <li>Error: %s</li>
</ul>`, ev.UserProfileID, ev.ApplicationID, ev.WalletAddress, ev.LockAddress, ev.Attempts, ev.Error)
	return es.send(ctx, es.AdminEmail, "Key grant failed for "+ev.WalletAddress, html)
}
