/*
Package notify delivers leave lifecycle notifications by e-mail.

PURPOSE:
  Implements leave.Notifier on top of an SMTP relay. The engine treats
  delivery as best effort: a failure is logged here, surfaced to the
  caller in Outcome.NotifyErr, and never undoes a balance movement.

UNCONFIGURED RELAY:
  When host, port or user is empty the notifier logs a warning and
  returns nil, so local setups work without a mail server.

SEE ALSO:
  - leave/notify.go: Notification and Notifier
*/
package notify

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

type Config struct {
	Host       string
	Port       string
	User       string
	Password   string
	From       string
	TLSEnabled bool
}

func (c Config) configured() bool {
	return c.Host != "" && c.Port != "" && c.User != ""
}

// sendFunc matches smtp.SendMail and smtp.SendMailTLS.
type sendFunc func(addr string, a sasl.Client, from string, to []string, r io.Reader) error

type EmailNotifier struct {
	cfg  Config
	log  logrus.FieldLogger
	send sendFunc
}

var _ leave.Notifier = (*EmailNotifier)(nil)

func NewEmailNotifier(cfg Config, log logrus.FieldLogger) *EmailNotifier {
	send := smtp.SendMail
	if cfg.TLSEnabled {
		send = smtp.SendMailTLS
	}
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	return &EmailNotifier{cfg: cfg, log: log, send: send}
}

func (e *EmailNotifier) Notify(ctx context.Context, n leave.Notification) error {
	logger := e.log.WithFields(logrus.Fields{
		"kind":        n.Kind,
		"application": n.Application.ID,
	})
	if !e.cfg.configured() {
		logger.Warn("notification not sent, smtp client is not configured")
		return nil
	}
	if len(n.To) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, body := Render(n)
	auth := sasl.NewPlainClient("", e.cfg.User, e.cfg.Password)
	msg := buildMessage(e.cfg.From, n.To, subject, body)

	if err := e.send(e.cfg.Host+":"+e.cfg.Port, auth, e.cfg.From, n.To, strings.NewReader(msg)); err != nil {
		logger.WithError(err).Error("failed to send notification")
		return fmt.Errorf("send %s notification: %w", n.Kind, err)
	}
	logger.WithField("to", n.To).Info("notification sent")
	return nil
}

// =============================================================================
// RENDERING
// =============================================================================

// Render produces the subject and plain-text body for n.
func Render(n leave.Notification) (subject, body string) {
	app := n.Application
	label := app.LeaveType.Label()
	if app.PolicySnapshot != nil && app.PolicySnapshot.LeaveType != "" {
		label = app.PolicySnapshot.LeaveType
	}

	switch n.Kind {
	case leave.NotifySubmitted:
		subject = fmt.Sprintf("Leave request from %s", app.EmployeeEmail)
	case leave.NotifyDecision:
		subject = fmt.Sprintf("Your leave request is %s", strings.ReplaceAll(string(app.Status), "_", " "))
	case leave.NotifyEdited:
		subject = "Your leave request was edited"
	case leave.NotifyDeleted:
		subject = "Your leave request was deleted"
	default:
		subject = "Leave request update"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Employee: %s\n", app.EmployeeEmail)
	fmt.Fprintf(&b, "Leave type: %s\n", label)
	fmt.Fprintf(&b, "Dates: %s\n", strings.Join(generic.FormatDates(app.Dates), ", "))
	fmt.Fprintf(&b, "Days: %s", app.DaysCount.String())
	if app.IsHalfDay {
		b.WriteString(" (half day)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Status: %s\n", app.Status)
	fmt.Fprintf(&b, "By: %s\n", n.Actor.Email)
	if n.Comment != "" {
		fmt.Fprintf(&b, "Comment: %s\n", n.Comment)
	}
	return subject, b.String()
}

func buildMessage(from string, to []string, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return b.String()
}
