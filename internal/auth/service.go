package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/astroulette/backend/internal/store"
)

// LoginTokenTTL is how long a mailed login link stays valid.
const LoginTokenTTL = 10 * time.Minute

// Service handles magic-link login and access tokens.
type Service struct {
	store  *store.Store
	tokens *TokenIssuer
	mailer Mailer
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewService(s *store.Store, tokens *TokenIssuer, mailer Mailer, log logrus.FieldLogger) *Service {
	return &Service{store: s, tokens: tokens, mailer: mailer, log: log, now: time.Now}
}

func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}

// RequestLogin creates the user on first contact, stores a fresh single-use
// login token and mails it.
func (s *Service) RequestLogin(ctx context.Context, email, username string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: email is required", ErrAuthInvalid)
	}
	if username = strings.TrimSpace(username); username == "" {
		username = strings.SplitN(email, "@", 2)[0]
	}

	token := uuid.NewString()
	expiry := s.now().Add(LoginTokenTTL).Unix()

	user, err := s.store.UserByEmail(ctx, email)
	switch {
	case err == nil:
		if user.Status == store.StatusDeleted {
			return fmt.Errorf("%w: account deleted", ErrAuthInvalid)
		}
		if _, err := s.store.Users().Update(ctx, user.ID, store.UserPatch{LoginToken: &token, TokenExpiry: &expiry}); err != nil {
			return err
		}
	case errors.Is(err, store.ErrRecordNotFound):
		user, err = s.store.Users().Create(ctx, &store.User{
			Username:    username,
			Email:       email,
			Role:        store.RoleUser,
			Status:      store.StatusActive,
			LoginToken:  &token,
			TokenExpiry: expiry,
		})
		if err != nil {
			return err
		}
		s.log.WithField("user_id", user.ID).Info("user created")
	default:
		return err
	}

	if err := s.mailer.Send(ctx, email, token); err != nil {
		return err
	}
	s.log.WithField("user_id", user.ID).Info("login link sent")
	return nil
}

// VerifyLogin consumes a login token and returns an access token for its user.
func (s *Service) VerifyLogin(ctx context.Context, token string) (string, *store.User, error) {
	if token == "" {
		return "", nil, ErrAuthInvalid
	}
	user, err := s.store.UserByLoginToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return "", nil, ErrAuthInvalid
		}
		return "", nil, err
	}
	if user.Status != store.StatusActive {
		return "", nil, ErrAuthInvalid
	}
	if user.TokenExpiry < s.now().Unix() {
		return "", nil, ErrAuthExpired
	}

	user, err = s.store.Users().Update(ctx, user.ID, store.UserPatch{ClearLoginToken: true})
	if err != nil {
		return "", nil, err
	}

	access, err := s.tokens.Generate(user.ID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	return access, user, nil
}

// Authenticate resolves an access token to an active user.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*store.User, error) {
	userID, err := s.tokens.Validate(accessToken)
	if err != nil {
		return nil, err
	}
	user, err := s.store.Users().Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown user", ErrAuthInvalid)
		}
		return nil, err
	}
	if user.Status != store.StatusActive {
		return nil, fmt.Errorf("%w: account deleted", ErrAuthInvalid)
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]store.User, error) {
	return s.store.Users().ReadAll(ctx)
}

func (s *Service) GetUser(ctx context.Context, id int64) (*store.User, error) {
	return s.store.Users().Get(ctx, id)
}

func (s *Service) UpdateUser(ctx context.Context, id int64, patch store.UserPatch) (*store.User, error) {
	return s.store.Users().Update(ctx, id, patch)
}

// DeleteUser marks the user deleted. Rows are never removed.
func (s *Service) DeleteUser(ctx context.Context, id int64) (*store.User, error) {
	status := store.StatusDeleted
	return s.store.Users().Update(ctx, id, store.UserPatch{Status: &status, ClearLoginToken: true})
}

type ctxKey struct{}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, u *store.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFrom returns the authenticated user, or nil.
func UserFrom(ctx context.Context) *store.User {
	u, _ := ctx.Value(ctxKey{}).(*store.User)
	return u
}
