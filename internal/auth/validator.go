package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

const leeway = time.Minute

var (
	ErrMissingToken    = errors.New("missing bearer token")
	ErrAlgorithm       = errors.New("unexpected signing algorithm")
	ErrInvalidAudience = errors.New("token is not meant for this audience")
	ErrMissingSubject  = errors.New("token without subject")
)

type contextKey string

const userKey contextKey = "userID"

// UserFromContext returns the subject of the validated token.
func UserFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(userKey).(string)
	return user, ok
}

type TokenParams struct {
	Secret   []byte
	Audience string
}

// TokenValidator checks HS256 tokens signed with the shared secret.
type TokenValidator struct {
	TokenParams
	logger *zap.Logger
	now    func() time.Time
}

func NewTokenValidator(logger *zap.Logger, params TokenParams) TokenValidator {
	return TokenValidator{logger: logger, TokenParams: params, now: time.Now}
}

func (t TokenValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			t.authError(w, ErrMissingToken)
			return
		}

		claims, err := t.Validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			t.authError(w, errors.New("auth token validation: "+err.Error()))
			return
		}

		newCtx := context.WithValue(r.Context(), userKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(newCtx))
	})
}

// Validate verifies the signature and the registered claims of the token.
func (t TokenValidator) Validate(tokenString string) (jwt.Claims, error) {
	token, err := jwt.ParseSigned(tokenString)
	if err != nil {
		return jwt.Claims{}, err
	}
	if len(token.Headers) != 1 || token.Headers[0].Algorithm != string(jose.HS256) {
		return jwt.Claims{}, ErrAlgorithm
	}

	var claims jwt.Claims
	if err := token.Claims(t.Secret, &claims); err != nil {
		return jwt.Claims{}, err
	}

	if err := claims.ValidateWithLeeway(jwt.Expected{Time: t.now()}, leeway); err != nil {
		return jwt.Claims{}, err
	}
	if !claims.Audience.Contains(t.Audience) {
		return jwt.Claims{}, ErrInvalidAudience
	}
	if claims.Subject == "" {
		return jwt.Claims{}, ErrMissingSubject
	}

	return claims, nil
}

func (t TokenValidator) authError(w http.ResponseWriter, err error) {
	t.logger.Warn(err.Error())
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(err.Error()))
}
