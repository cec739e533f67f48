package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const ClientContextKey ContextKey = "client"

// APIKeyHeader carries the shared server key.
const APIKeyHeader = "X-API-Key"

const (
	msgKeyNotConfigured = "API_KEY no configurada en el servidor."
	msgInvalidKey       = "API Key inválida o faltante."
	msgInvalidToken     = "Token inválido o expirado."
)

var (
	ErrNotInitialized = errors.New("auth not initialized")
	ErrNoSecret       = errors.New("jwt secret not configured")
	ErrInvalidToken   = errors.New("invalid token")
)

// Client identifies the caller of a gated route.
type Client struct {
	Subject string `json:"subject"`
	Method  string `json:"method"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Claims struct {
	jwt.RegisteredClaims
}

var (
	authConfig *AuthConfig
)

type AuthConfig struct {
	APIKey    string
	JwtSecret []byte
	TokenTTL  time.Duration
	Enabled   bool
}

// InitializeAuth sets up the auth configuration
func InitializeAuth(apiKey, jwtSecret string, tokenTTL time.Duration, enabled bool) {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	authConfig = &AuthConfig{
		APIKey:    apiKey,
		JwtSecret: []byte(jwtSecret),
		TokenTTL:  tokenTTL,
		Enabled:   enabled,
	}
	if enabled && apiKey == "" {
		log.Warn().Msg("auth enabled without API_KEY; gated routes will answer 500")
	}
}

// IsAuthEnabled returns whether authentication is enabled
func IsAuthEnabled() bool {
	if authConfig == nil {
		return false
	}
	return authConfig.Enabled
}

// CheckAPIKey compares the presented key with the configured one in constant time.
func CheckAPIKey(presented string) bool {
	if authConfig == nil || authConfig.APIKey == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(authConfig.APIKey)) == 1
}

// GenerateJWT signs an HS256 token for subject, valid for the configured TTL.
func GenerateJWT(subject string) (string, time.Time, error) {
	if authConfig == nil {
		return "", time.Time{}, ErrNotInitialized
	}
	if len(authConfig.JwtSecret) == 0 {
		return "", time.Time{}, ErrNoSecret
	}
	now := time.Now()
	exp := now.Add(authConfig.TokenTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(authConfig.JwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ValidateJWT validates and parses a JWT token
func ValidateJWT(tokenString string) (*Client, error) {
	if authConfig == nil {
		return nil, ErrNotInitialized
	}
	if len(authConfig.JwtSecret) == 0 {
		return nil, ErrNoSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return authConfig.JwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return &Client{Subject: claims.Subject, Method: "jwt"}, nil
	}

	return nil, ErrInvalidToken
}

// RequireAuth gates a handler behind X-API-Key or a bearer token.
// If auth is disabled, it allows all requests through
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !IsAuthEnabled() {
			next.ServeHTTP(w, r)
			return
		}

		if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			client, err := ValidateJWT(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				writeDetail(w, http.StatusUnauthorized, msgInvalidToken)
				return
			}
			ctx := context.WithValue(r.Context(), ClientContextKey, client)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if authConfig.APIKey == "" {
			writeDetail(w, http.StatusInternalServerError, msgKeyNotConfigured)
			return
		}
		if !CheckAPIKey(r.Header.Get(APIKeyHeader)) {
			writeDetail(w, http.StatusUnauthorized, msgInvalidKey)
			return
		}

		ctx := context.WithValue(r.Context(), ClientContextKey, &Client{Subject: "api-key", Method: "api_key"})
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// HandleIssueToken exchanges a valid X-API-Key for a short-lived bearer token.
func HandleIssueToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "Método no permitido.")
		return
	}
	if authConfig == nil || authConfig.APIKey == "" {
		writeDetail(w, http.StatusInternalServerError, msgKeyNotConfigured)
		return
	}
	if !CheckAPIKey(r.Header.Get(APIKeyHeader)) {
		writeDetail(w, http.StatusUnauthorized, msgInvalidKey)
		return
	}

	token, exp, err := GenerateJWT("api-key")
	if err != nil {
		log.Error().Err(err).Msg("issue token")
		writeDetail(w, http.StatusInternalServerError, "No se pudo emitir el token.")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(TokenResponse{Token: token, TokenType: "bearer", ExpiresAt: exp})
}

// GetClientFromContext extracts the authenticated caller from request context
func GetClientFromContext(r *http.Request) *Client {
	if c, ok := r.Context().Value(ClientContextKey).(*Client); ok {
		return c
	}
	return nil
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", APIKeyHeader)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
