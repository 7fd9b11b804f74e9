package service

import (
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

type EmailSender interface {
	SendEmail(toEmail, toName, subject, plainText, html string) error
}

type SMSSender interface {
	SendSMS(toNumber, body string) error
}

type SendGridMailer struct {
	APIKey    string
	FromEmail string
	FromName  string
	Logger    *zap.Logger
}

func NewSendGridMailer(apiKey, fromEmail, fromName string, logger *zap.Logger) *SendGridMailer {
	return &SendGridMailer{APIKey: apiKey, FromEmail: fromEmail, FromName: fromName, Logger: logger}
}

func (m *SendGridMailer) SendEmail(toEmail, toName, subject, plainText, html string) error {
	if m.APIKey == "" || m.FromEmail == "" {
		m.Logger.Warn("sendgrid is not configured, email not sent", zap.String("to", toEmail))
		return fmt.Errorf("sendgrid is not configured")
	}

	from := mail.NewEmail(m.FromName, m.FromEmail)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, plainText, html)

	client := sendgrid.NewSendClient(m.APIKey)
	response, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("error sending email through sendgrid: %w", err)
	}
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		m.Logger.Info("email sent", zap.String("to", toEmail), zap.String("subject", subject), zap.Int("status", response.StatusCode))
		return nil
	}
	return fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
}

type TwilioMessenger struct {
	client     *twilio.RestClient
	FromNumber string
	Logger     *zap.Logger
}

func NewTwilioMessenger(accountSID, authToken, fromNumber string, logger *zap.Logger) *TwilioMessenger {
	m := &TwilioMessenger{FromNumber: fromNumber, Logger: logger}
	if accountSID != "" && authToken != "" {
		m.client = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username:   accountSID,
			Password:   authToken,
			AccountSid: accountSID,
		})
	}
	return m
}

func (m *TwilioMessenger) SendSMS(toNumber, body string) error {
	if m.client == nil || m.FromNumber == "" {
		m.Logger.Warn("twilio is not configured, sms not sent", zap.String("to", toNumber))
		return fmt.Errorf("twilio is not configured")
	}
	if !strings.HasPrefix(toNumber, "+") {
		return fmt.Errorf("phone number %q is not in E.164 format", toNumber)
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(toNumber)
	params.SetFrom(m.FromNumber)
	params.SetBody(body)

	resp, err := m.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("error sending sms: %w", err)
	}
	if resp != nil && resp.Sid != nil {
		m.Logger.Info("sms sent", zap.String("to", toNumber), zap.String("sid", *resp.Sid))
	}
	return nil
}
