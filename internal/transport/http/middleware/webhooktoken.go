package middleware

import (
	"crypto/subtle"
	"net/http"
)

// WebhookToken returns middleware that checks the shared secret the bot
// transport presents on webhook calls. An empty configured token rejects
// everything, so an unconfigured deployment fails closed.
func WebhookToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Webhook-Token")
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSONError(w, http.StatusUnauthorized, "invalid webhook token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
