package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"netwatch/internal/audit"
	"netwatch/internal/config"
	"netwatch/internal/encryption"
	"netwatch/internal/hashing"
	"netwatch/internal/model"
	"netwatch/internal/repository/postgres"
	redisrepo "netwatch/internal/repository/redis"
	"netwatch/internal/util"
)

// SessionStore abstracts the server-side session backend.
type SessionStore interface {
	Create(ctx context.Context, identity *model.Identity) (string, error)
	Get(ctx context.Context, sessionID string) (*model.Identity, error)
	Delete(ctx context.Context, sessionID string) error
}

// AuthService handles registration, login, and session resolution.
type AuthService struct {
	users     postgres.UserRepository
	sessions  SessionStore
	hasher    *hashing.Hasher
	encryptor *encryption.Manager
	recorder  audit.Recorder
	config    *config.Config
}

func NewAuthService(
	users postgres.UserRepository,
	sessions SessionStore,
	hasher *hashing.Hasher,
	encryptor *encryption.Manager,
	recorder audit.Recorder,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		users:     users,
		sessions:  sessions,
		hasher:    hasher,
		encryptor: encryptor,
		recorder:  recorder,
		config:    cfg,
	}
}

// Register creates a new account with the default user role.
func (s *AuthService) Register(ctx context.Context, username, email, password, confirmPassword string) (*model.User, error) {
	username = util.SanitizeInput(username)
	email = strings.TrimSpace(email)

	if username == "" || email == "" || password == "" {
		return nil, fmt.Errorf("%w: all fields are required", ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email format", ErrValidation)
	}
	if len(password) < s.config.Auth.MinPassword {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, s.config.Auth.MinPassword)
	}
	if password != confirmPassword {
		return nil, fmt.Errorf("%w: passwords do not match", ErrValidation)
	}

	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("%w: username already taken", ErrAlreadyExists)
	} else if !errors.Is(err, postgres.ErrNoRows) {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}

	emailHash := hashing.DigestEmail(email)
	if _, err := s.users.GetUserByEmailHash(ctx, emailHash); err == nil {
		return nil, fmt.Errorf("%w: email already registered", ErrAlreadyExists)
	} else if !errors.Is(err, postgres.ErrNoRows) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	encrypted, err := s.encryptor.EncryptField(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt email: %w", err)
	}

	passwordHash, err := s.hasher.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Username:       username,
		Email:          email,
		EmailHash:      emailHash,
		EmailEncrypted: encrypted.Ciphertext,
		EmailDEK:       encrypted.WrappedDEK,
		EmailKeyID:     encrypted.KeyID,
		Password:       passwordHash,
		Role:           model.RoleUser,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, model.AuditEvent{
		Type:    model.EventUserRegistered,
		Message: fmt.Sprintf("user %s registered", user.Username),
		ActorID: user.ID,
	})

	return user, nil
}

// Login authenticates by username or email and opens a session.
func (s *AuthService) Login(ctx context.Context, login, password string) (*model.Identity, string, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, "", fmt.Errorf("%w: username and password are required", ErrValidation)
	}

	user, err := s.users.GetUserByUsername(ctx, login)
	if errors.Is(err, postgres.ErrNoRows) && strings.Contains(login, "@") {
		user, err = s.users.GetUserByEmailHash(ctx, hashing.DigestEmail(login))
	}
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, "", fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
		}
		return nil, "", fmt.Errorf("failed to look up user: %w", err)
	}

	ok, err := s.hasher.VerifyPassword(password, user.Password)
	if err != nil {
		return nil, "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		util.Warn("Login failed", zap.String("username", user.Username))
		return nil, "", fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		// Login still succeeds; last_login is informational.
		util.Warn("Failed to update last login",
			zap.Int64("user_id", user.ID),
			zap.Error(err))
	}

	identity := &model.Identity{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	}
	sessionID, err := s.sessions.Create(ctx, identity)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}

	s.recorder.Record(ctx, model.AuditEvent{
		Type:    model.EventUserLogin,
		Message: fmt.Sprintf("user %s logged in", user.Username),
		ActorID: user.ID,
	})

	util.Info("User logged in",
		zap.Int64("user_id", user.ID),
		zap.String("username", user.Username))
	return identity, sessionID, nil
}

// Logout destroys the session. Unknown sessions are ignored.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.sessions.Delete(ctx, sessionID)
}

// ResolveSession maps a session ID to the identity it carries.
func (s *AuthService) ResolveSession(ctx context.Context, sessionID string) (*model.Identity, error) {
	identity, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, redisrepo.ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: session expired or invalid", ErrUnauthorized)
		}
		return nil, err
	}
	return identity, nil
}

// SessionTTL exposes the configured session lifetime for cookie expiry.
func (s *AuthService) SessionTTL() time.Duration {
	return s.config.Auth.SessionTTL
}
