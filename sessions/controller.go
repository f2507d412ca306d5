package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	tgerrors "github.com/jrsteele09/go-tenant-gate/internal/errors"
)

// Controller admits and releases sessions against a Counter.
type Controller struct {
	counter Counter
	signer  *tokenSigner
	nowTime func() time.Time
	logger  zerolog.Logger
}

type ControllerOption func(*Controller)

func WithNowTime(nowFunc func() time.Time) ControllerOption {
	return func(c *Controller) {
		c.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

func WithIssuer(issuer string) ControllerOption {
	return func(c *Controller) {
		c.signer.issuer = issuer
	}
}

func NewController(counter Counter, secret []byte, options ...ControllerOption) (*Controller, error) {
	if counter == nil {
		return nil, errors.New("[NewController] counter is required")
	}
	if len(secret) == 0 {
		return nil, errors.New("[NewController] token secret is required")
	}
	c := &Controller{
		counter: counter,
		signer:  &tokenSigner{secret: secret},
		nowTime: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// TryAdmit admits a new session for userID when both the tenant-wide and the
// per-user limits have room. The check and the increment are one atomic step.
func (c *Controller) TryAdmit(ctx context.Context, tenantID, userID string, limits Limits) (*Token, error) {
	if tenantID == "" || userID == "" {
		return nil, errors.Wrap(tgerrors.ErrInvalidArgument, "[Controller.TryAdmit] tenant and user are required")
	}
	if limits.MaxPerUser <= 0 {
		limits.MaxPerUser = limits.MaxSessions
	}

	t := &Token{
		SessionID: uuid.New().String(),
		TenantID:  tenantID,
		UserID:    userID,
		IssuedAt:  c.nowTime().UTC().Truncate(time.Second),
	}
	if err := c.counter.Admit(ctx, tenantID, userID, t.SessionID, limits); err != nil {
		var limitErr *LimitError
		if errors.As(err, &limitErr) {
			c.logger.Info().Str("tenant_id", tenantID).Str("user_id", userID).Str("scope", string(limitErr.Scope)).
				Int64("limit", limitErr.Limit).Int64("current", limitErr.Current).Msg("session admission denied")
			return nil, err
		}
		return nil, errors.Wrap(err, "[Controller.TryAdmit] counter.Admit")
	}

	raw, err := c.signer.sign(t)
	if err != nil {
		if _, releaseErr := c.counter.Release(ctx, tenantID, t.SessionID); releaseErr != nil {
			c.logger.Err(releaseErr).Str("tenant_id", tenantID).Msg("releasing unsigned session")
		}
		return nil, err
	}
	t.Raw = raw
	return t, nil
}

// Release frees the token's slot. Releasing twice is a no-op.
func (c *Controller) Release(ctx context.Context, t *Token) error {
	if t == nil {
		return nil
	}
	released, err := c.counter.Release(ctx, t.TenantID, t.SessionID)
	if err != nil {
		return errors.Wrap(err, "[Controller.Release] counter.Release")
	}
	if released {
		c.logger.Debug().Str("tenant_id", t.TenantID).Str("session_id", t.SessionID).Msg("session released")
	}
	return nil
}

// ReleaseRaw verifies a signed token and releases it.
func (c *Controller) ReleaseRaw(ctx context.Context, raw string) (*Token, error) {
	t, err := c.Parse(raw)
	if err != nil {
		return nil, err
	}
	return t, c.Release(ctx, t)
}

// Parse verifies a signed token.
func (c *Controller) Parse(raw string) (*Token, error) {
	return c.signer.parse(raw)
}

func (c *Controller) Live(ctx context.Context, tenantID string) (int64, error) {
	return c.counter.Live(ctx, tenantID)
}

func (c *Controller) LiveForUser(ctx context.Context, tenantID, userID string) (int64, error) {
	return c.counter.LiveForUser(ctx, tenantID, userID)
}
