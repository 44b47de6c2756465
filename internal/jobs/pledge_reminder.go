// pledge_reminder.go implements the PledgeReminderNotifier background job, which periodically
// scans for ACTIVE pledges charging within the next few days and emails the donor. The charge
// date a reminder was sent for is persisted (pledges.reminder_sent_for), so each charge is
// announced exactly once even across restarts. The job is a no-op when notifications are
// disabled or SMTP is not configured, so it is always safe to start.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/temple4/community-core/internal/config"
	"github.com/temple4/community-core/internal/db/models"
	"github.com/temple4/community-core/internal/telemetry"
)

// reminderBatchSize bounds how many reminders one run sends.
const reminderBatchSize = 500

// ReminderStore lists pledges needing a reminder and records sent ones.
type ReminderStore interface {
	ListUpcomingReminders(ctx context.Context, now, until time.Time, limit int) ([]*models.PledgeReminder, error)
	MarkReminderSent(ctx context.Context, pledgeID string, chargeAt time.Time) error
}

// Mailer delivers one plain-text email.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer sends mail through the configured SMTP relay using gomail.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer creates a mailer from cfg. With UseTLS on port 465 gomail uses implicit TLS;
// on other ports it upgrades with STARTTLS.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.UseTLS && cfg.Port == 465
	return &SMTPMailer{dialer: d, from: cfg.From}
}

// Send implements Mailer
func (m *SMTPMailer) Send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return m.dialer.DialAndSend(msg)
}

// PledgeReminderNotifier periodically emails donors whose next charge is coming up.
type PledgeReminderNotifier struct {
	store    ReminderStore
	mailer   Mailer
	enabled  bool
	interval time.Duration
	lead     time.Duration
	now      func() time.Time
	stopChan chan struct{}
}

// NewPledgeReminderNotifier creates a new PledgeReminderNotifier.
func NewPledgeReminderNotifier(store ReminderStore, mailer Mailer, notifications config.NotificationsConfig, cfg config.PledgeReminderJobConfig) *PledgeReminderNotifier {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	leadDays := cfg.LeadDays
	if leadDays <= 0 {
		leadDays = 3
	}
	return &PledgeReminderNotifier{
		store:    store,
		mailer:   mailer,
		enabled:  notifications.Enabled && notifications.SMTP.Host != "",
		interval: interval,
		lead:     time.Duration(leadDays) * 24 * time.Hour,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start runs a check immediately, then repeats on the configured interval until ctx is
// cancelled or Stop is called. It blocks; run it on its own goroutine.
func (n *PledgeReminderNotifier) Start(ctx context.Context) {
	if !n.enabled {
		slog.Info("pledge reminder notifier disabled (notifications off or smtp host not set)")
		return
	}

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	slog.Info("pledge reminder notifier started", "interval", n.interval, "lead", n.lead)

	n.runCheck(ctx)
	for {
		select {
		case <-ticker.C:
			n.runCheck(ctx)
		case <-n.stopChan:
			slog.Info("pledge reminder notifier stopped")
			return
		case <-ctx.Done():
			slog.Info("pledge reminder notifier context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (n *PledgeReminderNotifier) Stop() {
	close(n.stopChan)
}

// runCheck sends reminders for charges due within the lead window and returns how many went out.
func (n *PledgeReminderNotifier) runCheck(ctx context.Context) int {
	start := time.Now()
	defer func() {
		telemetry.JobDuration.WithLabelValues("pledge_reminder").Observe(time.Since(start).Seconds())
	}()

	now := n.now().UTC()
	reminders, err := n.store.ListUpcomingReminders(ctx, now, now.Add(n.lead), reminderBatchSize)
	if err != nil {
		slog.Error("pledge reminder notifier: failed to query upcoming charges", "error", err)
		return 0
	}

	sent := 0
	for _, r := range reminders {
		if r.UserEmail == "" {
			continue
		}
		subject, body := reminderEmail(r, now)
		if err := n.mailer.Send(r.UserEmail, subject, body); err != nil {
			slog.Warn("pledge reminder notifier: failed to send email", "pledge_id", r.PledgeID, "error", err)
			continue
		}
		telemetry.ReminderEmailsSentTotal.Inc()
		sent++

		if err := n.store.MarkReminderSent(ctx, r.PledgeID, r.NextChargeAt); err != nil {
			slog.Error("pledge reminder notifier: failed to mark reminder sent", "pledge_id", r.PledgeID, "error", err)
		}
	}
	if sent > 0 {
		slog.Info("pledge reminder notifier: reminders sent", "count", sent)
	}
	return sent
}

// reminderEmail composes the subject and plain-text body for one reminder.
func reminderEmail(r *models.PledgeReminder, now time.Time) (subject, body string) {
	daysLeft := int(r.NextChargeAt.Sub(now).Hours()/24) + 1
	if daysLeft < 1 {
		daysLeft = 1
	}
	amount := FormatAmount(r.AmountCents, r.Currency)

	subject = fmt.Sprintf("Your %s gift to %s is scheduled in %d day(s)", amount, r.FundName, daysLeft)
	name := r.UserName
	if name == "" {
		name = "friend"
	}
	body = strings.Join([]string{
		fmt.Sprintf("Hello %s,", name),
		"",
		fmt.Sprintf("Thank you for your recurring gift to %s at %s.", r.FundName, r.TenantName),
		fmt.Sprintf("Your next gift of %s will be collected on %s.", amount, r.NextChargeAt.UTC().Format("Monday, 2 January 2006")),
		"",
		"You can pause or cancel your pledge at any time from your giving page.",
		"",
		r.TenantName,
	}, "\r\n")
	return subject, body
}

// FormatAmount renders minor units as "USD 25.00".
func FormatAmount(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s %s%d.%02d", strings.ToUpper(currency), sign, cents/100, cents%100)
}
