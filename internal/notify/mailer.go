package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"
)

// Config holds the SMTP settings for outbound mail.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer sends license mail over SMTP with implicit TLS.
type Mailer struct {
	client *mail.Client
	from   string
	logger *slog.Logger
}

// NewMailer builds the SMTP notifier. Dialing happens per send; a broken
// server surfaces on the first delivery, not here.
func NewMailer(cfg Config, logger *slog.Logger) (*Mailer, error) {
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
	)
	if err != nil {
		return nil, fmt.Errorf("notify: build mail client: %w", err)
	}
	return &Mailer{
		client: client,
		from:   cfg.From,
		logger: logger.With(slog.String("component", "mailer")),
	}, nil
}

func (m *Mailer) send(ctx context.Context, to, subject, text, html string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("notify: set from %q: %w", m.from, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("notify: set recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, text)
	msg.AddAlternativeString(mail.TypeTextHTML, html)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("notify: send %q to %s: %w", subject, to, err)
	}
	m.logger.InfoContext(ctx, "mail sent",
		slog.String("to", to),
		slog.String("subject", subject))
	return nil
}

// SendLicenseCreated mails the license id, the plaintext user key (shown
// once), and the readable expiry to a fresh licensee.
func (m *Mailer) SendLicenseCreated(ctx context.Context, to, license, userKey, validUntil string) error {
	return m.send(ctx, to,
		licenseCreatedSubject(),
		licenseCreatedText(license, userKey, validUntil),
		licenseCreatedHTML(license, userKey, validUntil))
}

// SendLicenseRenewed confirms a renewal and its new expiry.
func (m *Mailer) SendLicenseRenewed(ctx context.Context, to, license, renewedUntil string) error {
	return m.send(ctx, to,
		licenseRenewedSubject(),
		licenseRenewedText(license, renewedUntil),
		licenseRenewedHTML(license, renewedUntil))
}

// SendLicenseWarning warns that a license has entered its renewal window.
func (m *Mailer) SendLicenseWarning(ctx context.Context, to, license string, remainingDays int) error {
	return m.send(ctx, to,
		licenseWarningSubject(),
		licenseWarningText(license, remainingDays),
		licenseWarningHTML(license, remainingDays))
}

// SendLicenseExpired notifies that a license expired and was blocked.
func (m *Mailer) SendLicenseExpired(ctx context.Context, to, license string) error {
	return m.send(ctx, to,
		licenseExpiredSubject(),
		licenseExpiredText(license),
		licenseExpiredHTML(license))
}

// LogNotifier is the stand-in used when mail delivery is disabled: it logs
// what would have been sent and succeeds.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates the logging stand-in.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With(slog.String("component", "log_notifier"))}
}

func (n *LogNotifier) SendLicenseCreated(ctx context.Context, to, license, _, validUntil string) error {
	n.logger.InfoContext(ctx, "mail disabled, skipping license creation mail",
		slog.String("to", to),
		slog.String("license", license),
		slog.String("valid_until", validUntil))
	return nil
}

func (n *LogNotifier) SendLicenseRenewed(ctx context.Context, to, license, renewedUntil string) error {
	n.logger.InfoContext(ctx, "mail disabled, skipping renewal mail",
		slog.String("to", to),
		slog.String("license", license),
		slog.String("renewed_until", renewedUntil))
	return nil
}

func (n *LogNotifier) SendLicenseWarning(ctx context.Context, to, license string, remainingDays int) error {
	n.logger.InfoContext(ctx, "mail disabled, skipping warning mail",
		slog.String("to", to),
		slog.String("license", license),
		slog.Int("remaining_days", remainingDays))
	return nil
}

func (n *LogNotifier) SendLicenseExpired(ctx context.Context, to, license string) error {
	n.logger.InfoContext(ctx, "mail disabled, skipping expiration mail",
		slog.String("to", to),
		slog.String("license", license))
	return nil
}
