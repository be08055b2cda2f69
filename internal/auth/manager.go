package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// Roles recognized by the API. Approver is the one that matters for
// confirmation decisions; viewer can read but not decide.
const (
	RoleAdmin    = "admin"
	RoleApprover = "approver"
	RoleViewer   = "viewer"
)

// User is an authenticated operator of the mediation API.
type User struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// Claims carries the user inside the JWT alongside the standard claims.
type Claims struct {
	User User `json:"user"`
	jwt.RegisteredClaims
}

// Config holds auth settings.
type Config struct {
	JWTSecret       string
	TokenExpiration time.Duration
	RequireAuth     bool
}

// Manager issues and validates JWTs for the HTTP API.
type Manager struct {
	config Config
	secret []byte
}

func NewManager(config Config) *Manager {
	secret := config.JWTSecret
	if secret == "" {
		// Dev fallback. Tokens don't survive a restart with a random secret.
		b := make([]byte, 32)
		rand.Read(b)
		secret = base64.StdEncoding.EncodeToString(b)
		log.Warn().Msg("using generated JWT secret, set JWT_SECRET for production")
	}
	if config.TokenExpiration == 0 {
		config.TokenExpiration = 24 * time.Hour
	}

	return &Manager{
		config: config,
		secret: []byte(secret),
	}
}

// GenerateToken creates a signed JWT for the user.
func (m *Manager) GenerateToken(user User) (string, error) {
	now := time.Now()
	claims := &Claims{
		User: user,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "toolguard",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// RequiresAuth reports whether the API demands tokens.
func (m *Manager) RequiresAuth() bool {
	return m.config.RequireAuth
}

// ValidateToken verifies the signature and expiry and returns the user.
func (m *Manager) ValidateToken(tokenString string) (*User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return &claims.User, nil
}

func (u *User) hasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
