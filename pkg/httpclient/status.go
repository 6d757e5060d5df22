package httpclient

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/samvad-hq/gallery-relay/internal/domain"
)

// Retryable reports whether a status code signals a temporary condition.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// Snippet trims a response body for inclusion in error messages.
func Snippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

// CheckStatus classifies a finished request. Transport failures and retryable
// statuses wrap domain.ErrTransientNetwork; other non-2xx statuses are plain errors.
func CheckStatus(what string, status int, body []byte, err error) error {
	if err != nil {
		return domain.Transient(fmt.Errorf("%s: %w", what, err))
	}
	if status >= 200 && status < 300 {
		return nil
	}
	statusErr := fmt.Errorf("%s returned status %d body: %s", what, status, Snippet(body))
	if Retryable(status) {
		return domain.Transient(statusErr)
	}
	return statusErr
}
