// Package api implements the thin REST surface over the core orchestration
// spine: signal/risk/response/cta/cts analysis, crawler scheduling, and
// posting/automation control. Every handler delegates straight to the core
// component (Driver, Scheduler, Queue, Checker, OrgLimitManager) it fronts.
package api

import (
	"net/http"
	"strings"

	"github.com/reachby3c/engagement-agent/internal/platform/logging"
	"github.com/reachby3c/engagement-agent/internal/platform/servicetoken"
	"github.com/reachby3c/engagement-agent/pkg/response"
)

// RequirePrivileged gates the control-plane routes (scheduler start/stop,
// automation enable/disable/limits) behind a bearer service token. When no
// secret is configured (issuer.Enabled() == false) the control surface is
// left open but every request is logged at warn level, since an operator
// running without SECURITY.JWTSecret set has explicitly opted out of the
// auth boundary rather than hit it silently disabled.
func RequirePrivileged(issuer *servicetoken.Issuer, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !issuer.Enabled() {
				logger.Warn("privileged route reached with no service token configured", "path", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				response.Error(w, http.StatusUnauthorized, "missing bearer service token", nil)
				return
			}

			if _, err := issuer.Verify(strings.TrimPrefix(header, prefix)); err != nil {
				response.Error(w, http.StatusUnauthorized, "invalid or expired service token", err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
