package services

import (
	"context"
	"fmt"

	"slotbook/internal/config"
	"slotbook/internal/models"
	"slotbook/internal/slots"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// SMSSender delivers a text message
type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}

type TwilioSender struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioSender returns nil when SMS is not configured
func NewTwilioSender(cfg config.SMSConfig) *TwilioSender {
	if !cfg.Enabled() {
		return nil
	}
	return &TwilioSender{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.TwilioAccountSID,
			Password: cfg.TwilioAuthToken,
		}),
		from: cfg.FromNumber,
	}
}

// Send posts the message. The twilio client takes no context, so ctx only
// decides whether the call is started.
func (s *TwilioSender) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send to %s: %w", to, err)
	}
	if resp.ErrorCode != nil {
		return fmt.Errorf("twilio send to %s: error code %d", to, *resp.ErrorCode)
	}
	return nil
}

// ComposeReminderSMS is the short admin text sent alongside the reminder email
func ComposeReminderSMS(appt models.Appointment, minutes int) string {
	return fmt.Sprintf("Reminder: %s (%s) at %s in %d min. Send the meeting link. Ref %s",
		appt.Name, appt.Service, slots.FormatLabel(appt.TimeSlot), minutes, appt.MeetingID)
}
