package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gigmarket/gigauth/internal/service/verification"
)

type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) SendWithOptions(ctx context.Context, params *resend.SendEmailRequest, options *resend.SendEmailOptions) (*resend.SendEmailResponse, error) {
	args := m.Called(ctx, params, options)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.SendEmailResponse), args.Error(1)
}

func TestResendEmailService_SendCode(t *testing.T) {
	sender := new(MockEmailSender)
	svc := &ResendEmailService{from: "GigMarket <no-reply@gigmarket.dev>", emails: sender, maxRetries: 3}

	sender.On("SendWithOptions", mock.Anything, mock.MatchedBy(func(p *resend.SendEmailRequest) bool {
		return p.To[0] == "a@x.com" && p.Subject == "Reset your password" &&
			p.Text == "Your code is 123456. It expires in 10 minutes."
	}), mock.MatchedBy(func(o *resend.SendEmailOptions) bool {
		return o.IdempotencyKey != ""
	})).Return(&resend.SendEmailResponse{Id: "em_1"}, nil).Once()

	err := svc.SendCode(context.Background(), "a@x.com", "123456", verification.PurposePasswordReset, 10*time.Minute)
	require.NoError(t, err)
	sender.AssertExpectations(t)
}

func TestResendEmailService_RetriesTransientErrors(t *testing.T) {
	sender := new(MockEmailSender)
	svc := &ResendEmailService{from: "f@x.com", emails: sender, maxRetries: 3}

	sender.On("SendWithOptions", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("i/o timeout")).Once()
	sender.On("SendWithOptions", mock.Anything, mock.Anything, mock.Anything).
		Return(&resend.SendEmailResponse{Id: "em_2"}, nil).Once()

	err := svc.SendCode(context.Background(), "a@x.com", "123456", verification.PurposeTwoFactorAuth, 5*time.Minute)
	require.NoError(t, err)
	sender.AssertNumberOfCalls(t, "SendWithOptions", 2)
}

func TestResendEmailService_PermanentErrorIsNotRetried(t *testing.T) {
	sender := new(MockEmailSender)
	svc := &ResendEmailService{from: "f@x.com", emails: sender, maxRetries: 3}

	sender.On("SendWithOptions", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("invalid from address")).Once()

	err := svc.SendCode(context.Background(), "a@x.com", "123456", verification.PurposeEmailVerification, 15*time.Minute)
	assert.ErrorContains(t, err, "invalid from address")
	sender.AssertNumberOfCalls(t, "SendWithOptions", 1)
}

func TestResendEmailService_Validation(t *testing.T) {
	_, err := NewResendEmailService("", "f@x.com", 3)
	assert.Error(t, err)
	_, err = NewResendEmailService("re_key", "", 3)
	assert.Error(t, err)

	svc := &ResendEmailService{from: "f@x.com", emails: new(MockEmailSender), maxRetries: 1}
	assert.Error(t, svc.SendCode(context.Background(), "", "123456", verification.PurposePasswordReset, time.Minute))
}

func TestNewNotifier_FallsBackToNoop(t *testing.T) {
	n, err := NewNotifier("", "f@x.com", 3)
	require.NoError(t, err)
	assert.IsType(t, &NoopEmailService{}, n)
	assert.NoError(t, n.SendCode(context.Background(), "a@x.com", "1234", verification.PurposeTwoFactorAuth, time.Minute))
}

func TestResendRetryDelay(t *testing.T) {
	wait, ok := resendRetryDelay(&resend.RateLimitError{RetryAfter: "2"}, 0)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, wait)

	wait, ok = resendRetryDelay(&resend.RateLimitError{RetryAfter: "120"}, 0)
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, wait)

	_, ok = resendRetryDelay(errors.New("bad request"), 0)
	assert.False(t, ok)
}
