package billing

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/stridehq/subscription-engine/core"
)

// userIDHeader carries the authenticated user id resolved by the upstream
// auth layer. Session handling lives outside this service; the id arrives
// opaque and already verified.
const userIDHeader = "X-User-ID"

type ctxKey int

const userIDKey ctxKey = iota

// requireUser rejects requests without a valid authenticated user id.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get(userIDHeader))
		if err != nil || id == uuid.Nil {
			core.JSONError(w, core.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, id)))
	})
}

func userID(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(userIDKey).(uuid.UUID)
	return id
}
