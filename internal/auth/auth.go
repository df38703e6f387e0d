// Package auth handles account signup, password login and the bearer
// tokens that authenticate API requests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"questlog/internal/store"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrMissingFields      = errors.New("missing required fields")
)

const usersCollection = "users"

type SignupInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Session is the result of a successful login.
type Session struct {
	Token string `json:"token"`
	User  Claims `json:"user"`
}

type Service struct {
	store  store.Store
	tokens *Tokens
	logger *slog.Logger

	// signup serializes the email uniqueness check with the insert.
	signup sync.Mutex
}

func NewService(st store.Store, tokens *Tokens, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, tokens: tokens, logger: logger}
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup creates a user account and returns its id.
func (s *Service) Signup(ctx context.Context, in SignupInput) (string, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" || strings.TrimSpace(in.Name) == "" {
		return "", ErrMissingFields
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return "", err
	}

	s.signup.Lock()
	defer s.signup.Unlock()

	existing, err := s.store.Find(ctx, usersCollection, store.Where("email", email))
	if err != nil {
		return "", fmt.Errorf("checking email: %w", err)
	}
	if len(existing) > 0 {
		return "", ErrEmailTaken
	}

	id, err := s.store.Insert(ctx, usersCollection, store.Document{
		"email":     email,
		"name":      in.Name,
		"password":  hash,
		"createdAt": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user signed up", "user_id", id)
	return id, nil
}

// Login checks credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrMissingFields
	}

	users, err := s.store.Find(ctx, usersCollection, store.Where("email", email))
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	if len(users) == 0 || !CheckPassword(users[0].String("password"), password) {
		return nil, ErrInvalidCredentials
	}

	user := users[0]
	claims := Claims{ID: user.ID(), Email: user.String("email"), Name: user.String("name")}
	token, err := s.tokens.Issue(claims)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: claims}, nil
}

func (s *Service) Verify(token string) (Claims, error) {
	return s.tokens.Verify(token)
}
