package mail

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrUnavailable signals that no mail transport is configured.
var ErrUnavailable = errors.New("mail: transport unavailable")

// Message represents an outbound email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Mailer sends email messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Disabled is the mailer used when delivery is not configured. Every send
// reports ErrUnavailable so callers can log the condition and move on.
type Disabled struct{}

// Send implements Mailer.
func (Disabled) Send(context.Context, Message) error { return ErrUnavailable }

// IsAvailable reports whether m can actually deliver mail.
func IsAvailable(m Mailer) bool {
	if m == nil {
		return false
	}
	_, disabled := m.(Disabled)
	return !disabled
}

// NewMailer returns an SMTP mailer when settings enable delivery, and Disabled otherwise.
func NewMailer(settings SMTPSettings) (Mailer, error) {
	if !settings.Enabled {
		return Disabled{}, nil
	}
	return NewSMTPMailer(settings)
}

// Recorder captures messages in memory. It backs tests and local development.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	err      error
	notify   chan Message
}

// NewRecorder builds a Recorder that fails every send with err when err is non-nil.
func NewRecorder(err error) *Recorder {
	return &Recorder{err: err, notify: make(chan Message, 16)}
}

// Send implements Mailer.
func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()

	select {
	case r.notify <- msg:
	default:
	}
	return r.err
}

// Messages returns a copy of everything sent so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Sent exposes a channel that receives each message as it is sent.
func (r *Recorder) Sent() <-chan Message {
	return r.notify
}

func uniqueAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	var result []string
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, exists := seen[addr]; exists {
			continue
		}
		seen[addr] = struct{}{}
		result = append(result, addr)
	}
	return result
}
