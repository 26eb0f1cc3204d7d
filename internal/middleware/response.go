package middleware

import (
	"net/http"

	"github.com/giftdraw/auth-bridge/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}
