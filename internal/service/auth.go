package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/crypto/bcrypt"

	"github.com/sst-platform/incidentd/internal/config"
	"github.com/sst-platform/incidentd/internal/domain"
	"github.com/sst-platform/incidentd/internal/domain/user"
	"github.com/sst-platform/incidentd/internal/port/database"
)

// Private claim keys carried in access tokens.
const (
	claimUsername = "username"
	claimIsStaff  = "is_staff"
)

var errInvalidCredentials = fmt.Errorf("%w: incorrect username or password", domain.ErrUnauthorized)

// AuthService handles registration, password login and access tokens.
type AuthService struct {
	store  database.Store
	cfg    *config.Auth
	secret []byte
	now    func() time.Time
}

// NewAuthService creates a new authentication service.
func NewAuthService(store database.Store, cfg *config.Auth) *AuthService {
	return &AuthService{
		store:  store,
		cfg:    cfg,
		secret: []byte(cfg.JWTSecret),
		now:    time.Now,
	}
}

// Register creates a new active user with a bcrypt-hashed password.
// A taken username yields domain.ErrConflict.
func (s *AuthService) Register(ctx context.Context, req *user.CreateRequest) (*user.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUserByUsername(ctx, req.Username); err == nil {
		return nil, fmt.Errorf("username %s: %w", req.Username, domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &user.User{
		Username:     req.Username,
		FullName:     req.FullName,
		PasswordHash: string(hash),
		IsActive:     true,
		IsStaff:      req.IsStaff,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	slog.Info("user registered", "user_id", u.ID, "username", u.Username, "is_staff", u.IsStaff)
	return u, nil
}

// Login verifies the password and issues a bearer access token.
func (s *AuthService) Login(ctx context.Context, req user.LoginRequest) (*user.Token, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	u, err := s.store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errInvalidCredentials
	}
	if !u.IsActive {
		return nil, fmt.Errorf("%w: account is disabled", domain.ErrUnauthorized)
	}

	token, err := s.signToken(u)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &user.Token{
		AccessToken: token,
		TokenType:   user.TokenTypeBearer,
		ExpiresIn:   int(s.cfg.AccessTokenExpiry.Seconds()),
	}, nil
}

// ValidateAccessToken verifies signature, issuer and expiry and returns the
// caller identity. Any failure wraps domain.ErrUnauthorized.
func (s *AuthService) ValidateAccessToken(raw string) (*user.Claims, error) {
	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, s.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithClock(jwt.ClockFunc(s.now)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	id, err := strconv.ParseInt(tok.Subject(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed subject", domain.ErrUnauthorized)
	}

	claims := &user.Claims{
		Subject:   tok.Subject(),
		UserID:    id,
		ExpiresAt: tok.Expiration(),
	}
	if v, ok := tok.Get(claimUsername); ok {
		claims.Username, _ = v.(string)
	}
	if v, ok := tok.Get(claimIsStaff); ok {
		claims.IsStaff, _ = v.(bool)
	}
	return claims, nil
}

// CurrentUser loads the account behind validated claims. Deleted or disabled
// accounts are rejected.
func (s *AuthService) CurrentUser(ctx context.Context, claims *user.Claims) (*user.User, error) {
	u, err := s.store.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: user no longer exists", domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !u.IsActive {
		return nil, fmt.Errorf("%w: account is disabled", domain.ErrUnauthorized)
	}
	return u, nil
}

// ListUsers returns all accounts ordered by id.
func (s *AuthService) ListUsers(ctx context.Context) ([]user.User, error) {
	return s.store.ListUsers(ctx)
}

// SeedAdmin creates the staff account if the username is free. It reports
// whether a user was created.
func (s *AuthService) SeedAdmin(ctx context.Context, username, password string, fullName *string) (bool, error) {
	_, err := s.Register(ctx, &user.CreateRequest{
		Username: username,
		Password: password,
		FullName: fullName,
		IsStaff:  true,
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrConflict):
		return false, nil
	default:
		return false, fmt.Errorf("seed admin: %w", err)
	}
}

func (s *AuthService) signToken(u *user.User) (string, error) {
	now := s.now()
	tok, err := jwt.NewBuilder().
		Issuer(s.cfg.Issuer).
		Subject(strconv.FormatInt(u.ID, 10)).
		IssuedAt(now).
		Expiration(now.Add(s.cfg.AccessTokenExpiry)).
		JwtID(uuid.NewString()).
		Claim(claimUsername, u.Username).
		Claim(claimIsStaff, u.IsStaff).
		Build()
	if err != nil {
		return "", err
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, s.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}
