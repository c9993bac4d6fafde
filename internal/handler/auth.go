package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/qrdine/internal/domain/auth"
	"github.com/xenking/qrdine/internal/wire"
)

// APIKeyHeader carries the staff API key.
const APIKeyHeader = "api_key"

// RequireAPIKey admits requests whose api_key header authenticates and
// carries scope.
func (h *Handler) RequireAPIKey(scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := h.auth.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusUnauthorized, &wire.Error{
				Code:    http.StatusUnauthorized,
				Message: "missing or invalid api key",
				Kind:    wire.KindUnauthorized,
			})
			return
		}
		if !info.HasScope(scope) {
			writeJSON(w, http.StatusForbidden, &wire.Error{
				Code:    http.StatusForbidden,
				Message: "api key lacks scope " + scope,
				Kind:    wire.KindUnauthorized,
			})
			return
		}

		ctx := zctx.With(r.Context(), zap.String("api_key_id", info.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
