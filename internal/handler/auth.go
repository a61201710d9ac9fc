package handler

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/aria-ai/chat-engine/internal/middleware"
	"github.com/aria-ai/chat-engine/pkg/logger"
)

// AuthHandler mints dev tokens so clients can exercise the
// authenticated surface without a real identity provider.
type AuthHandler struct {
	jwtSecret     string
	jwtExpiration time.Duration
	logger        *logger.Logger
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(jwtSecret string, jwtExpiration time.Duration, log *logger.Logger) *AuthHandler {
	return &AuthHandler{jwtSecret: jwtSecret, jwtExpiration: jwtExpiration, logger: log}
}

// Token handles POST /auth/token. The envelope data is a signed
// bearer token for a fixed dev subject.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	claims := middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "dev-user",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.jwtExpiration)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.jwtSecret))
	if err != nil {
		h.logger.Error("sign dev token failed", zap.Error(err))
		writeFailure(w, codeInternal, "failed to sign token")
		return
	}
	writeData(w, signed)
}
