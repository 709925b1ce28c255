package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"slotbook/internal/config"
	"slotbook/internal/models"
	"slotbook/internal/slots"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// ErrMailDisabled is returned by a mailer that has no credentials. The
// dispatcher records such messages as skipped instead of failed.
var ErrMailDisabled = errors.New("email credentials not configured")

// EmailMessage is a composed email ready to send
type EmailMessage struct {
	ToName  string
	ToEmail string
	Subject string
	Plain   string
	HTML    string
}

// Mailer delivers a single email
type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
	Name() string
}

// NewMailer picks SendGrid when an API key is set, SMTP when relay
// credentials are set, and a disabled mailer otherwise
func NewMailer(cfg config.EmailConfig) Mailer {
	switch {
	case cfg.SendGridAPIKey != "" && cfg.FromEmail != "":
		return NewSendGridMailer(cfg.SendGridAPIKey, cfg.FromEmail, cfg.FromName)
	case cfg.SMTPHost != "" && cfg.SMTPUser != "" && cfg.SMTPPassword != "":
		return NewSMTPMailer(cfg)
	default:
		return DisabledMailer{}
	}
}

type SendGridMailer struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

func NewSendGridMailer(apiKey, fromEmail, fromName string) *SendGridMailer {
	return &SendGridMailer{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *SendGridMailer) Name() string { return "sendgrid" }

func (s *SendGridMailer) Send(ctx context.Context, msg EmailMessage) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.ToEmail)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Plain, msg.HTML)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("failed to send email to %s: %d", msg.ToEmail, response.StatusCode)
	}
	return nil
}

// SMTPMailer sends through an SMTP relay such as gmail
type SMTPMailer struct {
	addr string
	from string
	auth smtp.Auth
}

func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	from := strings.TrimSpace(cfg.FromEmail)
	if from == "" {
		from = cfg.SMTPUser
	}
	return &SMTPMailer{
		addr: fmt.Sprintf("%s:%d", cfg.SMTPHost, port),
		from: from,
		auth: smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPHost),
	}
}

func (s *SMTPMailer) Name() string { return "smtp" }

// Send ignores ctx cancellation once the SMTP exchange has started; the
// dispatcher's per-send timeout still bounds how long it waits for the result.
func (s *SMTPMailer) Send(ctx context.Context, msg EmailMessage) error {
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(s.addr, s.auth, s.from, []string{msg.ToEmail}, buildMIME(s.from, msg))
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// headerValue keeps a value on one header line
var headerValue = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func buildMIME(from string, msg EmailMessage) []byte {
	body := msg.HTML
	contentType := "text/html"
	if body == "" {
		body = msg.Plain
		contentType = "text/plain"
	}
	return []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: %s; charset=utf-8\r\n\r\n%s\r\n",
		headerValue.Replace(from), headerValue.Replace(msg.ToEmail), headerValue.Replace(msg.Subject), contentType, body))
}

// DisabledMailer is used when no email backend is configured
type DisabledMailer struct{}

func (DisabledMailer) Name() string { return "disabled" }

func (DisabledMailer) Send(context.Context, EmailMessage) error { return ErrMailDisabled }

// ComposeEmail renders the message for kind. Admin kinds go to adminEmail.
func ComposeEmail(kind models.NotificationKind, appt models.Appointment, extra map[string]any, adminEmail string) (EmailMessage, error) {
	date := appt.Date.Format("Monday, January 2, 2006")
	at := slots.FormatLabel(appt.TimeSlot)
	client := EmailMessage{ToName: appt.Name, ToEmail: appt.Email}
	admin := EmailMessage{ToName: "Admin", ToEmail: adminEmail}

	switch kind {
	case models.KindCreated:
		client.Subject = "Appointment Booking Received"
		client.Plain = fmt.Sprintf("Hello %s, we received your booking for %s on %s at %s. Your meeting reference is %s. %s",
			appt.Name, appt.Service, date, at, appt.MeetingID, appt.MeetingLink)
		client.HTML = fmt.Sprintf("<p>Hello %s,</p><p>We received your booking for <strong>%s</strong> on %s at %s.</p><p>Meeting reference: <strong>%s</strong></p><p>%s</p>",
			esc(appt.Name), esc(appt.Service), date, at, esc(appt.MeetingID), esc(appt.MeetingLink))
		return client, nil

	case models.KindConfirmedToClient:
		client.Subject = "Your Appointment is Confirmed"
		client.Plain = fmt.Sprintf("Hello %s, your %s appointment on %s at %s is confirmed.", appt.Name, appt.Service, date, at)
		client.HTML = fmt.Sprintf("<p>Hello %s,</p><p>Your <strong>%s</strong> appointment on %s at %s is confirmed.</p>",
			esc(appt.Name), esc(appt.Service), date, at)
		return client, nil

	case models.KindCancelledToClient:
		client.Subject = "Your Appointment was Cancelled"
		client.Plain = fmt.Sprintf("Hello %s, your %s appointment on %s at %s has been cancelled.", appt.Name, appt.Service, date, at)
		client.HTML = fmt.Sprintf("<p>Hello %s,</p><p>Your <strong>%s</strong> appointment on %s at %s has been cancelled.</p>",
			esc(appt.Name), esc(appt.Service), date, at)
		return client, nil

	case models.KindMeetingLink:
		link, _ := extra["meetingLink"].(string)
		if link == "" {
			link = appt.ActualMeetingLink
		}
		client.Subject = "Your Meeting Link"
		client.Plain = fmt.Sprintf("Hello %s, join your appointment on %s at %s here: %s", appt.Name, date, at, link)
		client.HTML = fmt.Sprintf("<p>Hello %s,</p><p>Join your appointment on %s at %s here: <a href=\"%s\">%s</a></p>",
			esc(appt.Name), date, at, esc(link), esc(link))
		return client, nil

	case models.KindAdminNew:
		if adminEmail == "" {
			return EmailMessage{}, errors.New("admin email not configured")
		}
		admin.Subject = fmt.Sprintf("New Appointment: %s on %s at %s", appt.Name, appt.Date.Format(slots.DateFormat), at)
		admin.Plain = adminDetails(appt, date, at)
		admin.HTML = "<pre>" + esc(admin.Plain) + "</pre>"
		return admin, nil

	case models.KindAdminReminder:
		if adminEmail == "" {
			return EmailMessage{}, errors.New("admin email not configured")
		}
		minutes := 30
		if n, ok := extra["minutesUntil"].(int); ok {
			minutes = n
		}
		admin.Subject = fmt.Sprintf("Urgent: Meeting in %d Minutes - Send the Meeting Link", minutes)
		admin.Plain = adminDetails(appt, date, at) + "\nCreate the meeting link and send it to the client now."
		admin.HTML = "<pre>" + esc(admin.Plain) + "</pre>"
		return admin, nil
	}
	return EmailMessage{}, fmt.Errorf("unknown notification kind %q", kind)
}

func adminDetails(appt models.Appointment, date, at string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Client: %s\nEmail: %s\nPhone: %s\nService: %s\nDate: %s\nTime: %s\nReference: %s\n",
		appt.Name, appt.Email, appt.Phone, appt.Service, date, at, appt.MeetingID)
	if appt.Message != "" {
		fmt.Fprintf(&b, "Message: %s\n", appt.Message)
	}
	return b.String()
}

func esc(s string) string { return html.EscapeString(s) }
