package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giftdraw/auth-bridge/internal/config"
)

func strPtr(s string) *string { return &s }

func TestEncodeDecode(t *testing.T) {
	t.Run("round trips a full payload", func(t *testing.T) {
		p := Payload{
			TelegramID:    12345,
			Username:      strPtr("alice"),
			FirstName:     strPtr("Alice"),
			AvatarURL:     strPtr("https://example.com/avatars/abc.jpg"),
			RefreshToken:  "refresh-token-value",
			Authenticated: true,
		}

		decoded := Decode(Encode(p))
		require.NotNil(t, decoded)
		assert.Equal(t, p, *decoded)
	})

	t.Run("round trips minimal payload", func(t *testing.T) {
		p := Payload{TelegramID: 1, RefreshToken: "r"}

		decoded := Decode(Encode(p))
		require.NotNil(t, decoded)
		assert.Nil(t, decoded.Username)
		assert.False(t, decoded.Authenticated)
	})

	t.Run("garbage input decodes to nil", func(t *testing.T) {
		cases := []struct {
			name  string
			value string
		}{
			{"empty string", ""},
			{"not base64", "!!!not-base64!!!"},
			{"base64 but not json", "bm90IGpzb24="},
			{"json but wrong shape", "eyJmb28iOiJiYXIifQ=="},
			{"missing user id", "eyJyZWZyZXNoVG9rZW4iOiJ4In0="},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				assert.Nil(t, Decode(tc.value))
			})
		}
	})
}

func TestFromRequest(t *testing.T) {
	t.Run("reads payload from cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{
			Name:  config.SessionCookieName,
			Value: Encode(Payload{TelegramID: 7, RefreshToken: "r", Authenticated: true}),
		})

		p := FromRequest(r)
		require.NotNil(t, p)
		assert.Equal(t, int64(7), p.TelegramID)
		assert.True(t, p.Authenticated)
	})

	t.Run("missing cookie yields nil", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		assert.Nil(t, FromRequest(r))
	})

	t.Run("corrupted cookie yields nil", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: config.SessionCookieName, Value: "corrupted"})
		assert.Nil(t, FromRequest(r))
	})
}

func TestSetCookie(t *testing.T) {
	t.Run("sets HttpOnly Secure SameSite=None cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		SetCookie(w, Payload{TelegramID: 7, RefreshToken: "r", Authenticated: true})

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)

		c := cookies[0]
		assert.Equal(t, config.SessionCookieName, c.Name)
		assert.True(t, c.HttpOnly)
		assert.True(t, c.Secure)
		assert.Equal(t, http.SameSiteNoneMode, c.SameSite)
		assert.Equal(t, int(config.SessionCookieMaxAge.Seconds()), c.MaxAge)

		decoded := Decode(c.Value)
		require.NotNil(t, decoded)
		assert.Equal(t, int64(7), decoded.TelegramID)
	})
}

func TestClearCookie(t *testing.T) {
	t.Run("expires the cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		ClearCookie(w)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)

		c := cookies[0]
		assert.Equal(t, config.SessionCookieName, c.Name)
		assert.Empty(t, c.Value)
		assert.Less(t, c.MaxAge, 0)
	})
}
