package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/resonatefm/resonate/pkg/mail"
)

func TestInitialiseMailerInvalidConfigFallsBackToDisabled(t *testing.T) {
	mailer := initialiseMailer(mail.SMTPSettings{
		Enabled: true,
		Host:    "",
		Port:    587,
	}, zap.NewNop())
	require.NotNil(t, mailer)

	_, err := mailer.Send(context.Background(), mail.Message{
		To:      []string{"user@example.com"},
		Subject: "test",
	})
	require.True(t, errors.Is(err, mail.ErrSMTPDisabled))

	require.True(t, errors.Is(mailer.Verify(context.Background()), mail.ErrSMTPDisabled))
}

func TestInitialiseMailerValidConfig(t *testing.T) {
	mailer := initialiseMailer(mail.SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
	}, zap.NewNop())
	require.NotNil(t, mailer)
}
