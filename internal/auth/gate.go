// Package auth gates protected routes on a live backend session.
package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"loanconnect/internal/backend"
	"loanconnect/internal/models"
)

// publicPrefixes are never gated, even when a protected prefix also matches.
var publicPrefixes = []string{"/auth"}

// UserFetcher resolves the user of the session carried by ctx.
type UserFetcher interface {
	Me(ctx context.Context) (*models.User, error)
}

// Gate redirects requests for protected paths to the sign-in page unless the
// backend confirms the session.
type Gate struct {
	users      UserFetcher
	protected  []string
	signInPath string
	logger     *zap.Logger
}

// NewGate creates a gate over the given path prefixes.
func NewGate(users UserFetcher, protected []string, signInPath string, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		users:      users,
		protected:  protected,
		signInPath: signInPath,
		logger:     logger,
	}
}

// Middleware checks the session of protected requests. Allowed requests carry
// the user and the browser cookies in their context.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if matchesAny(path, publicPrefixes) || !matchesAny(path, g.protected) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := backend.WithCookies(r.Context(), r.Cookies())
		user, err := g.users.Me(ctx)
		if err != nil || user == nil {
			g.logger.Info("authentication failed",
				zap.String("path", path),
				zap.Error(err),
			)
			http.Redirect(w, r, g.signInPath, http.StatusFound)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(ctx, user)))
	})
}

// matchesAny reports whether path equals a prefix or lies below it.
func matchesAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		p = strings.TrimRight(p, "/")
		if p == "" {
			continue
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

type userKey struct{}

// WithUser returns a context carrying user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFrom returns the user stored by the gate.
func UserFrom(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey{}).(*models.User)
	return user, ok && user != nil
}
