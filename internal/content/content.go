package content

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.StrictPolicy()

// Sanitize strips all HTML from a chat message body before it is persisted
// or echoed. Attachment payloads are base64 and pass through untouched.
func Sanitize(input string) string {
	return strings.TrimSpace(policy.Sanitize(input))
}
