package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/stratumhq/dbflow/pkg/dbcontext"
)

// DatabaseHeader selects the request's initial ambient database.
const DatabaseHeader = "X-Database"

// AmbientContext returns middleware that binds one database-context flow
// per request. Handlers and everything they call share the request's
// ambient record; unrelated requests never see each other's values.
// Pass nil logger to disable logging.
func AmbientContext(ambient *dbcontext.Ambient, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := ambient.Bind(r.Context())

			if db := r.Header.Get(DatabaseHeader); db != "" {
				// Bind just created the flow, so this cannot fail.
				_ = ambient.SetDatabase(ctx, db)
			}

			next.ServeHTTP(w, r.WithContext(ctx))

			if logger != nil {
				logger.Debug("request flow completed",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("flow_id", dbcontext.FlowID(ctx).String()),
					zap.String("database", ambient.Current(ctx).DatabaseName()),
					zap.Duration("duration", time.Since(start)),
				)
			}
		})
	}
}
