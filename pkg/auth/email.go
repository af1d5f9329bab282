package auth

import (
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type EmailSender interface {
	SendEmail(subject, toEmail, plainTextContent, htmlContent string) error
}

type sendGridSender struct {
	client      *sendgrid.Client
	senderEmail string
	senderName  string
}

func NewSendGridSender(apiKey, senderEmail, senderName string) EmailSender {
	return &sendGridSender{
		client:      sendgrid.NewSendClient(apiKey),
		senderEmail: senderEmail,
		senderName:  senderName,
	}
}

func (e *sendGridSender) SendEmail(subject, toEmail, plainTextContent, htmlContent string) error {
	from := mail.NewEmail(e.senderName, e.senderEmail)
	to := mail.NewEmail("", toEmail)
	message := mail.NewSingleEmail(from, subject, to, plainTextContent, htmlContent)
	resp, err := e.client.Send(message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid rejected message: status %d", resp.StatusCode)
	}
	return nil
}

func verificationEmail(code string) (subject, plain, html string) {
	subject = "Your Atelier verification code"
	plain = fmt.Sprintf("Your verification code is: %s. It expires in 10 minutes.", code)
	html = fmt.Sprintf(`
		<div style="font-family: Georgia, serif; padding: 20px;">
			<h2>Welcome to Atelier</h2>
			<p>Your verification code is:</p>
			<div style="font-size: 24px; font-weight: bold; letter-spacing: 4px; padding: 10px; background-color: #f5f5f5; display: inline-block;">
				%s
			</div>
			<p>This code expires in 10 minutes.</p>
			<p>If you did not create an account, you can ignore this email.</p>
		</div>
	`, code)
	return subject, plain, html
}
