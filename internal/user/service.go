package user

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/beaconads/internal/validate"
)

// DefaultResetCodeTTL is how long a reset code stays valid.
const DefaultResetCodeTTL = 10 * time.Minute

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Repository   Repository
	Mailer       Mailer        // nil: LogMailer
	ResetCodeTTL time.Duration // 0: DefaultResetCodeTTL
	Params       *Argon2Params // nil: DefaultArgon2Params
	Logger       *slog.Logger
}

// Service implements registration, login and password reset.
type Service struct {
	repo   Repository
	mailer Mailer
	ttl    time.Duration
	params Argon2Params
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Mailer == nil {
		cfg.Mailer = LogMailer{Logger: cfg.Logger}
	}
	if cfg.ResetCodeTTL <= 0 {
		cfg.ResetCodeTTL = DefaultResetCodeTTL
	}
	params := DefaultArgon2Params
	if cfg.Params != nil {
		params = *cfg.Params
	}
	return &Service{
		repo:   cfg.Repository,
		mailer: cfg.Mailer,
		ttl:    cfg.ResetCodeTTL,
		params: params,
		logger: cfg.Logger,
		now:    time.Now,
	}
}

// Register validates and creates an account.
func (s *Service) Register(ctx context.Context, username, email, password string) (*User, error) {
	fe := validate.FieldErrors{}
	username, err := validate.Username(username)
	if err != nil {
		fe.Add("username", err.Error())
	}
	email, err = validate.Email(email)
	if err != nil {
		fe.Add("email", err.Error())
	}
	if err := validate.Password(password); err != nil {
		fe.Add("password", err.Error())
	}
	if err := fe.Err(); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password, s.params)
	if err != nil {
		return nil, err
	}
	u := &User{Username: username, Email: email, PasswordHash: hash}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", u.ID))
	return u, nil
}

// Authenticate checks a password for login, which may be a username or an
// email address. Unknown users and wrong passwords both return
// ErrInvalidCredentials. Hashes made under an older cost policy are upgraded.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*User, error) {
	login = strings.TrimSpace(login)
	var (
		u   *User
		err error
	)
	if strings.Contains(login, "@") {
		u, err = s.repo.GetByEmail(ctx, login)
	} else {
		u, err = s.repo.GetByUsername(ctx, login)
	}
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, rehash, err := VerifyPassword(password, u.PasswordHash, s.params)
	if err != nil {
		s.logger.WarnContext(ctx, "stored password hash is unreadable", slog.String("user_id", u.ID))
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if rehash {
		if hash, hashErr := HashPassword(password, s.params); hashErr == nil {
			if setErr := s.repo.SetPasswordHash(ctx, u.ID, hash); setErr != nil {
				s.logger.WarnContext(ctx, "failed to upgrade password hash",
					slog.String("user_id", u.ID), slog.String("error", setErr.Error()))
			}
		}
	}
	return u, nil
}

// GetByID returns a user.
func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// RequestPasswordReset issues and mails a 6-digit code when email belongs to
// an account. Unknown addresses succeed silently so callers cannot probe for
// accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email, err := validate.Email(email)
	if err != nil {
		return validate.FieldErrors{"email": err.Error()}
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		s.logger.DebugContext(ctx, "password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	code, err := generateResetCode()
	if err != nil {
		return err
	}
	now := s.now().UTC()
	rc := &ResetCode{UserID: u.ID, Code: code, ExpiresAt: now.Add(s.ttl), CreatedAt: now}
	if err := s.repo.CreateResetCode(ctx, rc); err != nil {
		return err
	}
	if err := s.mailer.SendResetCode(ctx, u.Email, code, rc.ExpiresAt); err != nil {
		return fmt.Errorf("failed to send reset code: %w", err)
	}
	return nil
}

// ConfirmPasswordReset consumes a valid code and sets a new password.
func (s *Service) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error {
	if err := validate.Password(newPassword); err != nil {
		return validate.FieldErrors{"new_password": err.Error()}
	}
	u, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, ErrUserNotFound) {
		return ErrInvalidResetCode
	}
	if err != nil {
		return err
	}
	if err := s.repo.ConsumeResetCode(ctx, u.ID, strings.TrimSpace(code), s.now().UTC()); err != nil {
		return err
	}

	hash, err := HashPassword(newPassword, s.params)
	if err != nil {
		return err
	}
	if err := s.repo.SetPasswordHash(ctx, u.ID, hash); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "password reset completed", slog.String("user_id", u.ID))
	return nil
}

// generateResetCode returns a uniformly random code in [100000, 999999].
func generateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate reset code: %w", err)
	}
	return strconv.FormatInt(100000+n.Int64(), 10), nil
}
