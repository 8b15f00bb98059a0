package notify

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"
)

// Sender delivers composed messages. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// MailNotifier emails each recipient that has an address on file.
type MailNotifier struct {
	from   string
	sender Sender
}

// NewMailNotifier returns a notifier that sends through an SMTP server.
func NewMailNotifier(host string, port int, username, password, from string) *MailNotifier {
	return NewMailNotifierWithSender(from, gomail.NewDialer(host, port, username, password))
}

// NewMailNotifierWithSender returns a notifier using a custom sender.
func NewMailNotifierWithSender(from string, sender Sender) *MailNotifier {
	return &MailNotifier{from: from, sender: sender}
}

func (n *MailNotifier) Notify(ctx context.Context, ev Event) error {
	var msgs []*gomail.Message
	for _, r := range ev.Recipients {
		if r.Email == "" {
			slog.DebugContext(ctx, "Skipping recipient without email", "member_id", r.ID, "kind", ev.Kind)
			continue
		}
		msg := gomail.NewMessage()
		msg.SetHeader("From", n.from)
		msg.SetAddressHeader("To", r.Email, r.Name)
		msg.SetHeader("Subject", ev.Subject())
		msg.SetBody("text/plain", fmt.Sprintf("Hi %s,\n\n%s", r.Name, ev.Body()))
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil
	}

	if err := n.sender.DialAndSend(msgs...); err != nil {
		return fmt.Errorf("failed to send %s notification: %w", ev.Kind, err)
	}
	return nil
}
