package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// sesAPI is the part of the SES client the service calls
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailService sends transactional emails via AWS SES
type EmailService struct {
	client    sesAPI
	fromEmail string
	fromName  string
	baseURL   string
}

// NewEmailService creates a new email service using AWS SES.
// baseURL is the web app address that reset links point to.
func NewEmailService(region, fromEmail, fromName, baseURL string) (*EmailService, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newEmailService(ses.NewFromConfig(cfg), fromEmail, fromName, baseURL), nil
}

func newEmailService(client sesAPI, fromEmail, fromName, baseURL string) *EmailService {
	return &EmailService{client: client, fromEmail: fromEmail, fromName: fromName, baseURL: baseURL}
}

var resetHTML = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html lang="fr">
<head><meta charset="UTF-8"></head>
<body style="font-family: Georgia, serif; color: #1a1a1a;">
  <div style="max-width: 600px; margin: 0 auto; padding: 24px;">
    <h1 style="font-weight: normal;">Le Marché Luxe</h1>
    <p>Bonjour{{if .Name}} {{.Name}}{{end}},</p>
    <p>Vous avez demandé la réinitialisation de votre mot de passe. Ce lien expire dans une heure.</p>
    <p><a href="{{.URL}}" style="display: inline-block; padding: 12px 24px; background: #1a1a1a; color: #fff; text-decoration: none;">Réinitialiser mon mot de passe</a></p>
    <p>Si vous n'êtes pas à l'origine de cette demande, ignorez simplement cet e-mail.</p>
  </div>
</body>
</html>`))

var welcomeHTML = template.Must(template.New("welcome").Parse(`<!DOCTYPE html>
<html lang="fr">
<head><meta charset="UTF-8"></head>
<body style="font-family: Georgia, serif; color: #1a1a1a;">
  <div style="max-width: 600px; margin: 0 auto; padding: 24px;">
    <h1 style="font-weight: normal;">Bienvenue sur Le Marché Luxe</h1>
    <p>Bonjour{{if .Name}} {{.Name}}{{end}},</p>
    <p>Votre compte est prêt. Vous pouvez dès maintenant publier vos articles et échanger avec les vendeurs.</p>
    <p><a href="{{.URL}}">Découvrir les nouveautés</a></p>
  </div>
</body>
</html>`))

type templateData struct {
	Name string
	URL  string
}

// ResetURL builds the web app link carrying a reset token
func (e *EmailService) ResetURL(token string) string {
	return fmt.Sprintf("%s/reset-password?token=%s", e.baseURL, url.QueryEscape(token))
}

// SendPasswordResetEmail sends a password reset link valid for one hour
func (e *EmailService) SendPasswordResetEmail(ctx context.Context, toEmail, name, resetToken string) error {
	resetURL := e.ResetURL(resetToken)

	var html bytes.Buffer
	if err := resetHTML.Execute(&html, templateData{Name: name, URL: resetURL}); err != nil {
		return fmt.Errorf("failed to render reset email: %w", err)
	}

	text := fmt.Sprintf(`Le Marché Luxe

Vous avez demandé la réinitialisation de votre mot de passe.
Ce lien expire dans une heure :

%s

Si vous n'êtes pas à l'origine de cette demande, ignorez simplement cet e-mail.
`, resetURL)

	if err := e.send(ctx, toEmail, "Réinitialisation de votre mot de passe", html.String(), text); err != nil {
		return fmt.Errorf("failed to send password reset email: %w", err)
	}
	return nil
}

// SendWelcomeEmail greets a newly registered member
func (e *EmailService) SendWelcomeEmail(ctx context.Context, toEmail, name string) error {
	var html bytes.Buffer
	if err := welcomeHTML.Execute(&html, templateData{Name: name, URL: e.baseURL}); err != nil {
		return fmt.Errorf("failed to render welcome email: %w", err)
	}
	text := fmt.Sprintf("Bienvenue sur Le Marché Luxe.\n\nVotre compte est prêt : %s\n", e.baseURL)

	if err := e.send(ctx, toEmail, "Bienvenue sur Le Marché Luxe", html.String(), text); err != nil {
		return fmt.Errorf("failed to send welcome email: %w", err)
	}
	return nil
}

func (e *EmailService) send(ctx context.Context, to, subject, html, text string) error {
	from := e.fromEmail
	if e.fromName != "" {
		from = fmt.Sprintf("%s <%s>", e.fromName, e.fromEmail)
	}

	_, err := e.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(from),
		Destination: &types.Destination{ToAddresses: []string{to}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(html), Charset: aws.String("UTF-8")},
				Text: &types.Content{Data: aws.String(text), Charset: aws.String("UTF-8")},
			},
		},
	})
	return err
}
