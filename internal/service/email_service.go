package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/resend/resend-go/v2"

	"github.com/gigmarket/gigauth/internal/service/verification"
)

// emailSender: часть клиента Resend, которой пользуется сервис
type emailSender interface {
	SendWithOptions(ctx context.Context, params *resend.SendEmailRequest, options *resend.SendEmailOptions) (*resend.SendEmailResponse, error)
}

// NoopEmailService используется, когда ключ Resend не настроен (локальная разработка).
// Реализует verification.Notifier.
type NoopEmailService struct{}

func (s *NoopEmailService) SendCode(ctx context.Context, destination, code string, purpose verification.Purpose, expiresIn time.Duration) error {
	log.Printf("[EmailService] noop send %s code to=%s", purpose, destination)
	return nil
}

// ResendEmailService отправляет коды через Resend REST API. Реализует verification.Notifier.
type ResendEmailService struct {
	from       string
	emails     emailSender
	maxRetries int
}

func NewResendEmailService(apiKey, from string, maxRetries int) (*ResendEmailService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from is required")
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ResendEmailService{
		from:       from,
		emails:     resend.NewClient(apiKey).Emails,
		maxRetries: maxRetries,
	}, nil
}

// NewNotifier выбирает Resend или noop в зависимости от наличия ключа
func NewNotifier(apiKey, from string, maxRetries int) (verification.Notifier, error) {
	if apiKey == "" {
		log.Println("[EmailService] WARN: RESEND_API_KEY не задан, коды не отправляются")
		return &NoopEmailService{}, nil
	}
	return NewResendEmailService(apiKey, from, maxRetries)
}

// codeSubjects: тема письма по назначению кода
var codeSubjects = map[verification.Purpose]string{
	verification.PurposePasswordReset:       "Reset your password",
	verification.PurposeEmailVerification:   "Verify your email",
	verification.PurposeTwoFactorAuth:       "Your sign-in code",
	verification.PurposeAccountVerification: "Confirm your account",
}

func (s *ResendEmailService) SendCode(ctx context.Context, destination, code string, purpose verification.Purpose, expiresIn time.Duration) error {
	if destination == "" || code == "" {
		return fmt.Errorf("destination and code are required")
	}

	subject, ok := codeSubjects[purpose]
	if !ok {
		subject = "Your verification code"
	}
	minutes := int(expiresIn.Minutes())

	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{destination},
		Subject: subject,
		Text:    fmt.Sprintf("Your code is %s. It expires in %d minutes.", code, minutes),
		Html:    fmt.Sprintf("<p>Your code is <strong>%s</strong>.</p><p>It expires in %d minutes.</p>", code, minutes),
	}
	// Один ключ на все повторы, чтобы Resend не отправил письмо дважды
	options := &resend.SendEmailOptions{IdempotencyKey: uuid.NewString()}

	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		_, err := s.emails.SendWithOptions(ctx, params, options)
		if err == nil {
			return nil
		}
		lastErr = err

		if wait, ok := resendRetryDelay(err, attempt); ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		return fmt.Errorf("resend send failed: %w", err)
	}

	return fmt.Errorf("resend send failed after retries: %w", lastErr)
}

func resendRetryDelay(err error, attempt int) (time.Duration, bool) {
	var rateLimitErr *resend.RateLimitError
	if errors.As(err, &rateLimitErr) {
		if seconds, convErr := strconv.Atoi(strings.TrimSpace(rateLimitErr.RetryAfter)); convErr == nil && seconds > 0 {
			if seconds > 30 {
				seconds = 30
			}
			return time.Duration(seconds) * time.Second, true
		}
		return time.Duration(attempt+1) * time.Second, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "temporar") {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	return 0, false
}
