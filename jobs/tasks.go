package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/wneessen/go-mail"

	jobmetrics "github.com/ganacsi/ganacsi/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeForgotPassword carries a raw forgot-password request.
	TaskTypeForgotPassword = "auth:forgot_password"
)

// SendEmailPayload describes the information required to send an email.
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
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// PasswordResetEmail renders the message carrying a reset link.
func PasswordResetEmail(to, link string) SendEmailPayload {
	return SendEmailPayload{
		To:      to,
		Subject: "Reset your password",
		Body: "We received a request to reset your password.\r\n\r\n" +
			"Open this link within one hour to choose a new one:\r\n" + link + "\r\n\r\n" +
			"If you did not ask for this you can ignore this email.\r\n",
	}
}

// EmailSender delivers one message.
type EmailSender interface {
	Send(ctx context.Context, msg SendEmailPayload) error
}

// SMTPConfig addresses the outgoing mail relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender sends mail through an SMTP relay.
type SMTPSender struct {
	cfg  SMTPConfig
	dial func(ctx context.Context, msg *mail.Msg) error
}

// NewSMTPSender constructs an SMTP sender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	s := &SMTPSender{cfg: cfg}
	s.dial = s.dialAndSend
	return s
}

// ErrHeaderInjection rejects header values carrying line breaks.
var ErrHeaderInjection = errors.New("smtp: line break in header value")

// Send implements EmailSender.
func (s *SMTPSender) Send(ctx context.Context, msg SendEmailPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.cfg.Host == "" {
		return errors.New("smtp: host not configured")
	}
	m, err := buildMessage(s.cfg.From, msg)
	if err != nil {
		return err
	}
	return s.dial(ctx, m)
}

func (s *SMTPSender) dialAndSend(ctx context.Context, m *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password))
	}
	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp: new client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp: send: %w", err)
	}
	return nil
}

func buildMessage(from string, msg SendEmailPayload) (*mail.Msg, error) {
	for _, v := range []string{from, msg.To, msg.Subject} {
		if strings.ContainsAny(v, "\r\n") {
			return nil, fmt.Errorf("%w: %q", ErrHeaderInjection, v)
		}
	}
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("smtp: from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("smtp: recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

// ForgotPasswordPayload is the body of TaskTypeForgotPassword.
type ForgotPasswordPayload struct {
	Email string `json:"email"`
}

// NewForgotPasswordTask constructs the task handed off by the forgot-password
// endpoint.
func NewForgotPasswordTask(email string) (*asynq.Task, error) {
	if strings.TrimSpace(email) == "" {
		return nil, errors.New("forgot password: email required")
	}
	data, err := json.Marshal(ForgotPasswordPayload{Email: email})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeForgotPassword, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// ResetIssuer looks up the account and issues a reset token.
type ResetIssuer interface {
	IssueResetToken(ctx context.Context, email string) error
}

// ForgotPasswordJob processes TaskTypeForgotPassword tasks.
type ForgotPasswordJob struct {
	Issuer  ResetIssuer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle runs the lookup the HTTP request skipped. Malformed payloads are not
// retried.
func (j *ForgotPasswordJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Issuer == nil {
		return errors.New("forgot password: handler not configured")
	}
	var payload ForgotPasswordPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Email == "" {
		return fmt.Errorf("forgot password: invalid payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskTypeForgotPassword)
	defer func() {
		err = tracker.End(err)
	}()

	if err := j.Issuer.IssueResetToken(ctx, payload.Email); err != nil {
		j.logger().Error("issue reset token", slog.Any("error", err))
		return err
	}
	return nil
}

func (j *ForgotPasswordJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// EmailJob processes TaskTypeSendEmail tasks.
type EmailJob struct {
	Sender  EmailSender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle sends the queued message. Malformed payloads are not retried.
func (j *EmailJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sender == nil {
		return errors.New("send email: handler not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.To == "" {
		return fmt.Errorf("send email: invalid payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskTypeSendEmail)
	defer func() {
		err = tracker.End(err)
	}()

	if err := j.Sender.Send(ctx, payload); err != nil {
		j.logger().Error("send email", slog.Any("error", err), slog.String("subject", payload.Subject))
		return err
	}
	j.logger().Info("email sent", slog.String("subject", payload.Subject))
	return nil
}

func (j *EmailJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
