package httputil

import (
	"bytes"
	"strings"
)

var captchaMarkers = [][]byte{
	[]byte("captcha"),
	[]byte("please verify"),
	[]byte("pardon our interruption"),
	[]byte("are you a human"),
}

// LooksLikeCaptcha reports whether an HTML body is a bot challenge rather
// than the requested page. Non-HTML content is never a challenge.
func LooksLikeCaptcha(contentType string, body []byte) bool {
	if contentType != "" && !strings.Contains(strings.ToLower(contentType), "html") {
		return false
	}
	lower := bytes.ToLower(body)
	for _, m := range captchaMarkers {
		if bytes.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Retryable reports whether a status code is worth another attempt.
func Retryable(status int) bool {
	switch status {
	case 429, 500, 503:
		return true
	}
	return false
}
