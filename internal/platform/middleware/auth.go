package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"aegis/pkg/requestcontext"
)

// JWTValidator validates a bearer token and returns the actor (subject) it
// authenticates.
type JWTValidator interface {
	Validate(tokenString string) (actorID string, err error)
}

// HMACValidator validates HS256 tokens signed with a shared key.
type HMACValidator struct {
	key []byte
}

// NewHMACValidator builds a validator over the configured signing key.
func NewHMACValidator(key string) *HMACValidator {
	return &HMACValidator{key: []byte(key)}
}

// Validate parses and verifies the token, returning its subject claim.
func (v *HMACValidator) Validate(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", jwt.ErrTokenInvalidSubject
	}
	return sub, nil
}

// RequireAdvocate guards the break-glass review endpoints. The token subject
// becomes the actor recorded on state transitions and ledger entries.
func RequireAdvocate(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			actorID, err := validator.Validate(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				logger.WarnContext(r.Context(), "advocate token rejected",
					"error", err.Error(),
					"request_id", requestcontext.RequestID(r.Context()),
				)
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			ctx := requestcontext.WithActorID(r.Context(), actorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
