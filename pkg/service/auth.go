package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/internal/ratelimiter"
	"github.com/marmos91/dittobox/pkg/metrics"
	"github.com/marmos91/dittobox/pkg/store/metadata"
	"golang.org/x/crypto/bcrypt"
)

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

// usernamePattern keeps usernames usable as a blob key segment.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,64}$`)

// registration is validated with struct tags before anything is stored.
type registration struct {
	Username string `validate:"required,username"`
	Email    string `validate:"required,max=254,email"`
	Password string `validate:"required"`
}

// AuthService registers accounts and verifies credentials.
//
// Passwords are stored as bcrypt hashes. Login attempts are throttled per
// username, and a login for an unknown user still runs a bcrypt comparison
// (against a fixed dummy hash) so response time does not reveal whether the
// account exists.
//
// Thread Safety:
// Safe for concurrent use.
type AuthService struct {
	meta      metadata.MetadataStore
	cfg       AuthConfig
	metrics   metrics.ServiceMetrics
	validate  *validator.Validate
	limiter   *ratelimiter.Keyed
	dummyHash []byte
	now       func() time.Time
}

// NewAuthService creates an auth service. m may be nil.
//
// Returns an error if the configured bcrypt cost is out of range.
func NewAuthService(meta metadata.MetadataStore, cfg AuthConfig, m metrics.ServiceMetrics) (*AuthService, error) {
	cfg.applyDefaults()
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cfg.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if m == nil {
		m = metrics.NewNoopServiceMetrics()
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("dittobox-timing-equalizer"), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("failed to register username validation: %w", err)
	}

	return &AuthService{
		meta:     meta,
		cfg:      cfg,
		metrics:  m,
		validate: v,
		limiter: ratelimiter.NewKeyed(ratelimiter.KeyedConfig{
			PerSecond: cfg.LoginRate,
			Burst:     cfg.LoginBurst,
			Size:      cfg.LimiterSize,
			TTL:       cfg.LimiterTTL,
		}),
		dummyHash: dummy,
		now:       defaultNow,
	}, nil
}

func (a *AuthService) observe(op string, start time.Time, err error) {
	a.metrics.RecordOperation(op, outcome(err), time.Since(start))
}

// Register creates an account and returns its ID.
//
// Returns:
//   - int64: The new user's ID
//   - error: InvalidInput, DuplicateUsername, DuplicateEmail, or StorageFailure
func (a *AuthService) Register(ctx context.Context, username, email, password string) (id int64, err error) {
	const op = "auth.register"
	defer func(start time.Time) { a.observe("register", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	email = strings.TrimSpace(email)
	if err := a.validateRegistration(registration{Username: username, Email: email, Password: password}); err != nil {
		return 0, newError(KindInvalidInput, op, err.Error(), nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cfg.BcryptCost)
	if err != nil {
		return 0, newError(KindInvalidInput, op, "password cannot be used", err)
	}

	user := &metadata.User{
		Username:     username,
		Email:        metadata.NormalizeEmail(email),
		PasswordHash: string(hash),
		CreatedAt:    a.now(),
	}
	if err := a.meta.CreateUser(ctx, user); err != nil {
		return 0, fromStore(op, err)
	}

	logger.Info("Registered user: id=%d username=%s", user.ID, user.Username)
	return user.ID, nil
}

// Authenticate verifies a username and password.
//
// Returns:
//   - *metadata.User: The authenticated user
//   - error: InvalidCredentials for any mismatch (unknown user, wrong
//     password), RateLimited when the username has too many recent attempts
func (a *AuthService) Authenticate(ctx context.Context, username, password string) (user *metadata.User, err error) {
	const op = "auth.authenticate"
	defer func(start time.Time) { a.observe("authenticate", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !a.limiter.Allow(username) {
		logger.Warn("Login throttled: username=%s", username)
		return nil, newError(KindRateLimited, op, "too many login attempts, try again later", nil)
	}

	user, err = a.meta.GetUserByUsername(ctx, username)
	if err != nil {
		if !metadata.IsNotFound(err) {
			return nil, fromStore(op, err)
		}
		_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(password))
		return nil, newError(KindInvalidCredentials, op, "invalid username or password", nil)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			logger.Warn("Login: unusable password hash for user id=%d: %v", user.ID, err)
		}
		return nil, newError(KindInvalidCredentials, op, "invalid username or password", nil)
	}

	a.limiter.Reset(username)
	return user, nil
}

// User returns the account with the given ID.
func (a *AuthService) User(ctx context.Context, id int64) (*metadata.User, error) {
	user, err := a.meta.GetUserByID(ctx, id)
	if err != nil {
		return nil, fromStore("auth.user", err)
	}
	return user, nil
}

// validateRegistration returns a message naming the first invalid field.
func (a *AuthService) validateRegistration(r registration) error {
	if err := a.validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s is invalid", strings.ToLower(verrs[0].Field()))
		}
		return err
	}

	switch {
	case len(r.Password) < a.cfg.MinPasswordLength:
		return fmt.Errorf("password must be at least %d bytes", a.cfg.MinPasswordLength)
	case len(r.Password) > maxPasswordBytes:
		return fmt.Errorf("password must be at most %d bytes", maxPasswordBytes)
	}
	return nil
}
