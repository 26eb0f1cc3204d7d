package handler

import (
	"html/template"
	"net/http"
	"strings"
)

// telegramUserAgents are substrings marking Telegram's in-app browser, which
// blocks window.open and plain redirects out of the WebView.
var telegramUserAgents = []string{"Telegram", "WebView"}

func isInAppBrowser(userAgent string) bool {
	for _, marker := range telegramUserAgents {
		if strings.Contains(userAgent, marker) {
			return true
		}
	}
	return false
}

var bridgeTemplate = template.Must(template.New("bridge").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Redirecting...</title>
  <style>
    body {
      margin: 0;
      padding: 20px;
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
      background: #0a0a0a;
      color: #fff;
      display: flex;
      flex-direction: column;
      align-items: center;
      justify-content: center;
      min-height: 100vh;
      text-align: center;
    }
    .spinner {
      border: 3px solid rgba(255, 255, 255, 0.1);
      border-top: 3px solid #fff;
      border-radius: 50%;
      width: 40px;
      height: 40px;
      animation: spin 1s linear infinite;
      margin-bottom: 20px;
    }
    @keyframes spin {
      0% { transform: rotate(0deg); }
      100% { transform: rotate(360deg); }
    }
    .link {
      margin-top: 20px;
      padding: 12px 24px;
      background: #0088cc;
      color: #fff;
      text-decoration: none;
      border-radius: 8px;
      display: inline-block;
    }
  </style>
</head>
<body>
  <div class="spinner"></div>
  <h2>Authorization successful!</h2>
  <p>Opening in your browser...</p>
  <a href="{{.RedirectURL}}" class="link">Open in browser</a>
  <script>
    try {
      window.open({{.RedirectURL}}, '_blank', 'noopener,noreferrer');
    } catch (e) {
      // The button above stays as the manual escape hatch.
    }
  </script>
</body>
</html>
`))

// writeBridgePage renders the page shown inside the Telegram in-app browser
// after a successful exchange; it hands the user off to their real browser.
func writeBridgePage(w http.ResponseWriter, redirectURL string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	bridgeTemplate.Execute(w, map[string]string{"RedirectURL": redirectURL})
}
