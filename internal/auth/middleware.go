package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/marketplace/internal/domain"
	"github.com/joao-fontenele/marketplace/internal/web"
)

// Guard authenticates requests and enforces a capability per route.
type Guard struct {
	tokens *Tokens
	logger *slog.Logger
}

func NewGuard(tokens *Tokens, logger *slog.Logger) *Guard {
	return &Guard{tokens: tokens, logger: logger}
}

// Require wraps next so it only runs for callers holding capability. A
// missing or invalid token yields 401, a lacking capability 403.
func (g *Guard) Require(capability Capability, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := g.authenticate(r)
		if err != nil {
			web.Error(w, g.logger, err)
			return
		}

		if !capability(p) {
			g.logger.Warn("capability denied", "account_kind", p.Kind, "account_id", p.ID, "path", r.URL.Path)
			web.Error(w, g.logger, fmt.Errorf("%w: insufficient privileges", domain.ErrForbidden))
			return
		}

		next(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func (g *Guard) authenticate(r *http.Request) (Principal, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return Principal{}, fmt.Errorf("%w: missing bearer token", domain.ErrUnauthorized)
	}
	return g.tokens.Parse(strings.TrimSpace(raw))
}

// ActFor checks that the caller on r may operate on userID's resources.
func ActFor(r *http.Request, userID string) error {
	p, ok := FromContext(r.Context())
	if !ok {
		return fmt.Errorf("%w: no principal", domain.ErrUnauthorized)
	}
	if !p.CanActFor(userID) {
		return fmt.Errorf("%w: cannot act for another user", domain.ErrForbidden)
	}
	return nil
}
