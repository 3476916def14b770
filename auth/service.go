package auth

import (
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"time"

	"github.com/go-pkgz/auth/v2"
	"github.com/go-pkgz/auth/v2/avatar"
	"github.com/go-pkgz/auth/v2/provider"
	"github.com/go-pkgz/auth/v2/token"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/krishkalaria12/pix-stash/config"
	"github.com/krishkalaria12/pix-stash/models"
	"github.com/krishkalaria12/pix-stash/repository"
)

const (
	issuer         = "pix-stash"
	tokenDuration  = time.Hour * 24
	cookieDuration = time.Hour * 24 * 7
)

var ErrInvalidCredentials = errors.New("invalid identity or password")

// Service issues and validates identity tokens and checks credentials
// against the user table. It is constructed once and handed to whoever
// needs it; there is no package-level instance.
type Service struct {
	svc   *auth.Service
	users *repository.UserRepository
}

func NewService(cfg *config.Config, users *repository.UserRepository) *Service {
	s := &Service{users: users}

	options := auth.Opts{
		SecretReader: token.SecretFunc(func(id string) (string, error) {
			return cfg.JWTSecret, nil
		}),
		TokenDuration:  tokenDuration,
		CookieDuration: cookieDuration,
		Issuer:         issuer,
		URL:            cfg.AppURL,
		AvatarStore:    avatar.NewLocalFS("/tmp/avatars"),
	}

	svc := auth.NewService(options)
	svc.AddDirectProvider("local", provider.CredCheckerFunc(func(identity, password string) (bool, error) {
		_, err := s.CheckCredentials(identity, password)
		if errors.Is(err, ErrInvalidCredentials) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}))

	s.svc = svc
	return s
}

// IssueToken creates a signed JWT carrying the user's numeric id.
func (s *Service) IssueToken(u *models.User) (string, error) {
	claims := token.Claims{
		User: &token.User{
			ID:    strconv.FormatUint(uint64(u.ID), 10),
			Name:  u.Username,
			Email: u.Email,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  []string{issuer},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	tokenStr, err := s.svc.TokenService().Token(claims)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return tokenStr, nil
}

// ParseUserID validates the token and returns the embedded user id.
func (s *Service) ParseUserID(tokenStr string) (uint, error) {
	claims, err := s.svc.TokenService().Parse(tokenStr)
	if err != nil {
		return 0, fmt.Errorf("parse token: %w", err)
	}
	if claims.User == nil {
		return 0, errors.New("token has no user claim")
	}

	id, err := strconv.ParseUint(claims.User.ID, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid user id in token: %w", err)
	}
	return uint(id), nil
}

// CheckCredentials verifies identity (email or username) plus password and
// returns the matching user. Unknown identity and wrong password both map
// to ErrInvalidCredentials.
func (s *Service) CheckCredentials(identity, password string) (*models.User, error) {
	var user *models.User
	var err error

	if isEmail(identity) {
		user, err = s.users.GetByEmail(identity)
	} else {
		user, err = s.users.GetByUsername(identity)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// HashPassword returns the bcrypt hash stored for new users.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	return string(hashed), err
}

func isEmail(identity string) bool {
	_, err := mail.ParseAddress(identity)
	return err == nil
}
