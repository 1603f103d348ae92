package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/dmarchuk/rentd/pkg/logger"
)

// EmailService delivers verification codes. A delivery failure must fail the
// issuing operation: a session is not considered issued if the code is known
// not to have reached the user.
type EmailService interface {
	SendVerificationCode(ctx context.Context, destination, code string, expiryMinutes int, useContext string) error
}

// AWSSESEmailService sends verification codes using AWS SES
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendVerificationCode sends a one-time code to the destination address.
// useContext describes the operation the code confirms and is included in the
// message so a user can tell a login challenge from a deletion confirmation.
func (s *AWSSESEmailService) SendVerificationCode(ctx context.Context, destination, code string, expiryMinutes int, useContext string) error {
	if useContext == "" {
		useContext = "a sign-in to your account"
	}

	textBody := fmt.Sprintf(`Your verification code is: %s

This code confirms: %s

The code expires in %d minutes. If you did not request it, you can ignore
this email and the request will expire on its own.

This is an automated message. Please do not reply.
`, code, useContext, expiryMinutes)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2>Your verification code</h2>
    <p style="font-size: 32px; letter-spacing: 6px; font-weight: bold;">%s</p>
    <p>This code confirms: <strong>%s</strong></p>
    <p>The code expires in %d minutes. If you did not request it, you can
    ignore this email and the request will expire on its own.</p>
    <p style="color: #666; font-size: 12px;">This is an automated message. Please do not reply.</p>
  </div>
</body>
</html>
`, code, useContext, expiryMinutes)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{destination},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Your verification code"),
			},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send verification code via SES",
			slog.String("destination", pkglogger.SanitizedEmail(destination)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("verification code sent",
		slog.String("destination", pkglogger.SanitizedEmail(destination)),
		slog.String("message_id", *result.MessageId))

	return nil
}
