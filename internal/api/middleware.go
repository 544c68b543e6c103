package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jbweber/homelab/ipdesk/internal/domain"
	"github.com/jbweber/homelab/ipdesk/internal/log"
	"github.com/jbweber/homelab/ipdesk/internal/metrics"
)

// Headers set by the access gateway in front of ipdesk
const (
	HeaderUser = "X-Ipdesk-User"
	HeaderRole = "X-Ipdesk-Role"
)

type identityKey struct{}

// IdentityFromContext returns the caller stored by RequireIdentity
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domain.Identity)
	return id, ok
}

// RequireIdentity rejects requests without a user and a known role
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get(HeaderUser)
		if user == "" {
			writeError(w, http.StatusUnauthorized, "missing "+HeaderUser+" header")
			return
		}
		role, err := domain.ParseRole(r.Header.Get(HeaderRole))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), identityKey{}, domain.Identity{Username: user, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects non-administrators. It must run after RequireIdentity.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok || !id.IsAdmin() {
			writeError(w, http.StatusForbidden, "administrator role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AccessLog logs every request through zerolog and records the API metrics
func AccessLog(next http.Handler) http.Handler {
	logger := log.WithComponent("http")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, route)

		logger.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", timer.Duration().Round(time.Microsecond)).
			Msg("request")
	})
}
