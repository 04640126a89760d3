package services

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"regent-tracker/config"
	"regent-tracker/models"
	"regent-tracker/utils"
)

// Reasons a notifier skips without failing.
var (
	ErrNothingToSend = errors.New("no new listings")
	ErrNotConfigured = errors.New("email credentials not set")
	ErrDisabled      = errors.New("notifications disabled")
)

// Notifier delivers new listings to people. A skipped outcome comes with one
// of the Err* reasons above; a failed outcome with a *NotifyError.
type Notifier interface {
	Notify(ctx context.Context, listings []models.Listing) (models.NotifyOutcome, error)
}

// NotifyError reports a delivery failure.
type NotifyError struct {
	Message string
	Cause   error
}

func (e *NotifyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("notify error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("notify error: %s", e.Message)
}

func (e *NotifyError) Unwrap() error {
	return e.Cause
}

// MailSender hands a composed message to a mail server.
type MailSender interface {
	Send(ctx context.Context, msg *mail.Msg) error
}

// EmailNotifier renders a bilingual plain-text alert and sends it over SMTP.
type EmailNotifier struct {
	cfg       config.EmailConfig
	sources   map[string]config.Source
	criteria  []string
	dashboard string
	sender    MailSender
	retry     *utils.RetryConfig
	logger    *utils.Logger
	now       func() time.Time
}

// NewEmailNotifier builds a notifier from cfg. criteria lines are printed at
// the bottom of every message.
func NewEmailNotifier(cfg *config.Config, criteria []string, logger *utils.Logger) *EmailNotifier {
	sources := make(map[string]config.Source, len(cfg.Sources))
	for _, s := range cfg.Sources {
		sources[s.ID] = s
	}
	return &EmailNotifier{
		cfg:       cfg.Email,
		sources:   sources,
		criteria:  criteria,
		dashboard: cfg.DashboardURL,
		sender: &SMTPSender{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.Sender,
			Password: cfg.Email.Password,
			Timeout:  30 * time.Second,
		},
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries + 1,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		logger: logger.With("component", "email"),
		now:    time.Now,
	}
}

// WithSender replaces the SMTP transport.
func (n *EmailNotifier) WithSender(s MailSender) *EmailNotifier {
	n.sender = s
	return n
}

// WithClock replaces the clock used for the subject line.
func (n *EmailNotifier) WithClock(now func() time.Time) *EmailNotifier {
	n.now = now
	return n
}

func (n *EmailNotifier) Notify(ctx context.Context, listings []models.Listing) (models.NotifyOutcome, error) {
	if len(listings) == 0 {
		return models.NotifySkipped, ErrNothingToSend
	}
	if !n.cfg.Configured() {
		n.logger.Warn("email credentials not set, skipping notification",
			"hint", "set EMAIL_SENDER, EMAIL_PASSWORD and EMAIL_RECIPIENTS")
		return models.NotifySkipped, ErrNotConfigured
	}

	subject, body := n.Render(listings)
	msg, err := buildMessage(n.cfg.Sender, n.cfg.Recipients, subject, body)
	if err != nil {
		return models.NotifyFailed, &NotifyError{Message: "compose failed", Cause: err}
	}

	err = n.retry.Do(ctx, "smtp send", func() error {
		err := n.sender.Send(ctx, msg)
		if isPermanentSMTPError(err) {
			return utils.Permanent(err)
		}
		return err
	})
	if err != nil {
		return models.NotifyFailed, &NotifyError{Message: "send failed", Cause: err}
	}

	n.logger.Info("email sent", "recipients", len(n.cfg.Recipients), "listings", len(listings))
	return models.NotifySent, nil
}

// Render returns the subject and plain-text body for listings.
func (n *EmailNotifier) Render(listings []models.Listing) (string, string) {
	now := n.now()
	subject := fmt.Sprintf("🏠 天鑽新放盤 New Listings (%d) - %s", len(listings), now.Format("2006-01-02 15:04"))

	sep := strings.Repeat("=", 50)
	rule := strings.Repeat("-", 50)
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("%s", sep)
	line("天鑽 The Regent - 新放盤通知 New Listing Alert")
	line("%s", sep)
	line("")
	line("發現 %d 個新放盤", len(listings))
	line("Found %d new listing(s)", len(listings))
	line("")
	line("%s", rule)

	for i, l := range listings {
		line("")
		line("【%d】", i+1)
		line("📍 %s", LocationZh(l))
		line("   %s", LocationEn(l))
		if !l.FloorKnown() && !l.UnitKnown() && l.RawDescription != "" {
			line("📝 %s", l.RawDescription)
		}
		line("")
		if l.Size > 0 {
			line("📐 %d呎 / %d sq.ft.", l.Size, l.Size)
		} else {
			line("📐 面積未知 / size unknown")
		}
		if l.Rooms > 0 {
			line("🛏️ %d房 / %d Room(s)", l.Rooms, l.Rooms)
		} else {
			line("🛏️ 房數未知 / rooms unknown")
		}
		if l.PricePerArea > 0 {
			line("💰 %s (%s/呎)", FormatHKD(l.Price), FormatHKD(l.PricePerArea))
		} else {
			line("💰 %s", FormatHKD(l.Price))
		}
		line("🏢 %s", n.sourceName(l.Source))
		line("")
		line("🔗 Link: %s", l.URL)
		line("")
		line("%s", rule)
	}

	if len(n.criteria) > 0 {
		line("")
		line("篩選條件 Filter Criteria:")
		for _, c := range n.criteria {
			line("- %s", c)
		}
	}
	line("")
	line("---")
	line("此郵件由天鑽放盤監控系統自動發送")
	line("This email was sent automatically by The Regent Listing Tracker")
	if n.dashboard != "" {
		line("Dashboard: %s", n.dashboard)
	}
	return subject, b.String()
}

func (n *EmailNotifier) sourceName(id string) string {
	if s, ok := n.sources[id]; ok {
		return s.DisplayName()
	}
	return id
}

// buildMessage composes a UTF-8 plain-text message with a base64 body.
func buildMessage(from string, to []string, subject, body string) (*mail.Msg, error) {
	m := mail.NewMsg(mail.WithCharset(mail.CharsetUTF8), mail.WithEncoding(mail.EncodingB64))
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("sender %q: %w", from, err)
	}
	if err := m.To(to...); err != nil {
		return nil, fmt.Errorf("recipients %s: %w", strings.Join(to, ", "), err)
	}
	m.Subject(subject)
	m.SetDate()
	m.SetBodyString(mail.TypeTextPlain, body)
	return m, nil
}

// isPermanentSMTPError reports 5xx replies and rejected envelopes, which
// retrying cannot fix.
func isPermanentSMTPError(err error) bool {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code >= 500
	}
	var sendErr *mail.SendError
	if errors.As(err, &sendErr) && !sendErr.IsTemp() {
		return sendErr.Reason == mail.ErrSMTPMailFrom || sendErr.Reason == mail.ErrSMTPRcptTo
	}
	return false
}

// SMTPSender delivers mail through one SMTP server. Port 465 uses implicit
// TLS; other ports upgrade with STARTTLS when the server offers it.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

func (s *SMTPSender) client() (*mail.Client, error) {
	opts := []mail.Option{mail.WithPort(s.Port)}
	if s.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(s.Timeout))
	}
	if s.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if s.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.Username),
			mail.WithPassword(s.Password))
	}
	return mail.NewClient(s.Host, opts...)
}

func (s *SMTPSender) Send(ctx context.Context, msg *mail.Msg) error {
	c, err := s.client()
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send via %s:%d: %w", s.Host, s.Port, err)
	}
	return nil
}

// LogNotifier writes new listings to the log instead of sending them.
// It always reports a skipped outcome.
type LogNotifier struct {
	logger *utils.Logger
}

func NewLogNotifier(logger *utils.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

func (n *LogNotifier) Notify(_ context.Context, listings []models.Listing) (models.NotifyOutcome, error) {
	if len(listings) == 0 {
		return models.NotifySkipped, ErrNothingToSend
	}
	for _, l := range listings {
		n.logger.Info("new listing",
			"location", LocationEn(l),
			"price", l.Price,
			"size", l.Size,
			"rooms", l.Rooms,
			"source", l.Source,
			"id", l.Fingerprint)
	}
	return models.NotifySkipped, ErrDisabled
}
