package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/matichattellino/euphoria-iva/src/config"
	"github.com/matichattellino/euphoria-iva/src/logger"
	"github.com/matichattellino/euphoria-iva/src/models"
)

// Notifier is told when a scraper run reaches a terminal state.
type Notifier interface {
	NotifyScrapeFinished(ctx context.Context, state models.ScraperState) error
}

// NewNotifier picks the notifier configured by NOTIFY_PROVIDER, falling back
// to a log-only notifier when the provider is unknown or incomplete.
func NewNotifier(cfg *config.AppConfig) Notifier {
	if cfg == nil {
		return &LogNotifier{}
	}
	provider := strings.ToLower(cfg.NotifyProvider)
	logger.L.Info().Str("provider", provider).Msg("Initializing scrape notifier")

	switch provider {
	case "mailgun":
		if cfg.MailgunDomain == "" || cfg.MailgunPrivateAPIKey == "" || cfg.SenderEmail == "" || cfg.NotifyEmail == "" {
			logger.L.Warn().Msg("Mailgun configuration incomplete (domain, API key, sender or recipient missing). Falling back to LogNotifier.")
			return &LogNotifier{}
		}
		mg := mailgun.NewMailgun(cfg.MailgunDomain, cfg.MailgunPrivateAPIKey)
		logger.L.Info().Str("domain", cfg.MailgunDomain).Msg("Mailgun client initialized")
		return &MailgunNotifier{
			mg:          mg,
			senderEmail: cfg.SenderEmail,
			senderName:  cfg.SenderName,
			recipient:   cfg.NotifyEmail,
		}
	default:
		return &LogNotifier{}
	}
}

type MailgunNotifier struct {
	mg          mailgun.Mailgun
	senderEmail string
	senderName  string
	recipient   string
}

func (n *MailgunNotifier) NotifyScrapeFinished(ctx context.Context, state models.ScraperState) error {
	from := n.senderEmail
	if n.senderName != "" {
		from = fmt.Sprintf("%s <%s>", n.senderName, n.senderEmail)
	}
	subject, body := scrapeMessage(state)
	message := n.mg.NewMessage(from, subject, body, n.recipient)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, id, err := n.mg.Send(ctx, message)
	if err != nil {
		logger.L.Error().Err(err).Str("to", n.recipient).Str("runId", state.RunID).Msg("Failed to send scrape notification via Mailgun")
		return fmt.Errorf("failed to send scrape notification via Mailgun: %w", err)
	}
	logger.L.Info().Str("mailgunId", id).Str("response", resp).Str("runId", state.RunID).Msg("Scrape notification sent")
	return nil
}

// LogNotifier only logs; it is used when no mail provider is configured.
type LogNotifier struct{}

func (n *LogNotifier) NotifyScrapeFinished(_ context.Context, state models.ScraperState) error {
	subject, _ := scrapeMessage(state)
	logger.L.Info().Str("runId", state.RunID).Str("status", string(state.Status)).Msg(subject)
	return nil
}

func scrapeMessage(state models.ScraperState) (subject, body string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Period: %s\n", state.Period)
	if state.StartedAt != nil {
		fmt.Fprintf(&b, "Started: %s\n", state.StartedAt.Format(time.RFC3339))
	}
	if state.FinishedAt != nil {
		fmt.Fprintf(&b, "Finished: %s\n", state.FinishedAt.Format(time.RFC3339))
	}

	if state.Status == models.ScraperDone {
		subject = fmt.Sprintf("Invoices for %s downloaded and stored", state.Period)
	} else {
		subject = fmt.Sprintf("Invoice download for %s failed", state.Period)
		fmt.Fprintf(&b, "Error: %s\n", state.Error)
	}

	tail := state.Output
	if len(tail) > 20 {
		tail = tail[len(tail)-20:]
	}
	if len(tail) > 0 {
		b.WriteString("\nLast output:\n")
		b.WriteString(strings.Join(tail, "\n"))
		b.WriteString("\n")
	}
	return subject, b.String()
}
