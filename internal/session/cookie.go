package session

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/giftdraw/auth-bridge/internal/config"
)

// Payload is the session state carried in the transport cookie. The encoding is
// reversible and unsigned: the cookie is a carrier, not a trust boundary. Any
// privileged read must revalidate RefreshToken against the user store; the
// Authenticated flag is a client-side rendering hint only.
type Payload struct {
	TelegramID    int64   `json:"userId"`
	Username      *string `json:"username,omitempty"`
	FirstName     *string `json:"firstName,omitempty"`
	AvatarURL     *string `json:"avatarUrl,omitempty"`
	RefreshToken  string  `json:"refreshToken"`
	Authenticated bool    `json:"authenticated"`
}

// Encode renders the payload as base64 JSON.
func Encode(p Payload) string {
	data, err := json.Marshal(p)
	if err != nil {
		// Payload contains only plain fields; Marshal cannot fail in practice.
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// Decode parses a cookie value back into a payload. Malformed or tampered
// input yields nil: a parse failure is equivalent to having no session.
func Decode(value string) *Payload {
	if value == "" {
		return nil
	}

	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	if p.TelegramID == 0 {
		return nil
	}
	return &p
}

// FromRequest decodes the session cookie if present, nil otherwise.
func FromRequest(r *http.Request) *Payload {
	cookie, err := r.Cookie(config.SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	return Decode(cookie.Value)
}

// SetCookie writes the session cookie. SameSite=None because the exchange
// redirect crosses from the API origin back to the web app, including inside
// Telegram's in-app browser.
func SetCookie(w http.ResponseWriter, p Payload) {
	http.SetCookie(w, &http.Cookie{
		Name:     config.SessionCookieName,
		Value:    Encode(p),
		Path:     "/",
		MaxAge:   int(config.SessionCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

// ClearCookie forces deletion by setting the same cookie name with Max-Age=0.
func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     config.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}
