package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userContextKey = contextKey("user")

var errMissingSubject = errors.New("token has no subject")

// Authenticator validates bearer tokens issued by the identity provider. An RSA
// public key takes precedence over the shared HMAC secret.
type Authenticator struct {
	keyFunc jwt.Keyfunc
	parser  *jwt.Parser
}

func NewAuthenticator(secret, publicKeyPEM, issuer string) (*Authenticator, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired(), jwt.WithLeeway(30 * time.Second)}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	a := &Authenticator{}
	switch {
	case strings.TrimSpace(publicKeyPEM) != "":
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parse jwt public key: %w", err)
		}
		a.keyFunc = func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return key, nil
		}
		opts = append(opts, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}))
	case secret != "":
		key := []byte(secret)
		a.keyFunc = func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return key, nil
		}
		opts = append(opts, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	default:
		return nil, errors.New("jwt secret or public key is required")
	}
	a.parser = jwt.NewParser(opts...)
	return a, nil
}

// UserID validates the token and returns its subject.
func (a *Authenticator) UserID(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	if _, err := a.parser.ParseWithClaims(tokenString, claims, a.keyFunc); err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errMissingSubject
	}
	return claims.Subject, nil
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := a.UserID(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userContextKey).(string)
	return id
}
