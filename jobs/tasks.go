package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/stockflow/internal/jobs"
)

const (
	// QueueDefault carries maintenance jobs such as the sweep and the digest.
	QueueDefault = "default"
	// QueueMail carries outgoing mail.
	QueueMail = "mail"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// QueueNames lists every queue the worker serves, mail first.
var QueueNames = []string{QueueMail, QueueDefault}

// queueWeights favours mail: suppliers act on confirmation links while the
// maintenance jobs can wait.
var queueWeights = map[string]int{QueueMail: 6, QueueDefault: 3}

// SendEmailPayload describes the information required to send an email. Body
// is HTML.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	if payload.To == "" {
		return nil, errors.New("send email: recipient required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.Queue(QueueMail), asynq.MaxRetry(8), asynq.Timeout(time.Minute)), nil
}

// Sender hands a fully built message to a mail transport.
type Sender interface {
	Send(ctx context.Context, from string, to []string, msg []byte) error
}

// SMTPSender delivers through a plain SMTP relay.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Send implements Sender. Authentication is used only when a username is set.
func (s SMTPSender) Send(ctx context.Context, from string, to []string, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := s.Host + ":" + strconv.Itoa(s.Port)
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	return smtp.SendMail(addr, auth, from, to, msg)
}

// EmailJob delivers queued mail.
type EmailJob struct {
	Sender  Sender
	From    string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewEmailJob constructs the mail:send handler.
func NewEmailJob(sender Sender, from string, logger *slog.Logger, metrics *jobmetrics.Metrics) *EmailJob {
	return &EmailJob{
		Sender:  sender,
		From:    from,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskTypeSendEmail tasks.
func (j *EmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sender == nil {
		return errors.New("send email: sender not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.To == "" {
		return fmt.Errorf("send email: empty recipient: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskTypeSendEmail)
	err := j.Sender.Send(ctx, j.From, []string{payload.To}, j.buildMessage(payload))
	if err != nil {
		j.log().Warn("send email", slog.String("to", payload.To), slog.String("subject", payload.Subject), slog.Any("error", err))
		return tracker.End(err)
	}
	j.log().Info("email sent", slog.String("to", payload.To), slog.String("subject", payload.Subject))
	return tracker.End(nil)
}

func (j *EmailJob) buildMessage(p SendEmailPayload) []byte {
	var b strings.Builder
	b.WriteString("From: " + j.From + "\r\n")
	b.WriteString("To: " + p.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", p.Subject) + "\r\n")
	b.WriteString("Date: " + j.now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(p.Body)
	return []byte(b.String())
}

func (j *EmailJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *EmailJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
