package user

import (
	"context"
	"log/slog"
	"time"
)

// Mailer delivers password reset codes.
type Mailer interface {
	SendResetCode(ctx context.Context, email, code string, expiresAt time.Time) error
}

// LogMailer writes reset codes to the log instead of sending email. It is the
// default when no mail transport is configured.
type LogMailer struct {
	Logger *slog.Logger
}

// SendResetCode implements Mailer.
func (m LogMailer) SendResetCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "password reset code issued",
		slog.String("email", email),
		slog.String("code", code),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}
