package avatar

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

const gravatarBaseURL = "https://www.gravatar.com/avatar/"

// GravatarURL returns the default avatar reference for an email.
// Nothing is fetched; the URL is stored as-is.
func GravatarURL(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	sum := md5.Sum([]byte(normalized))
	return gravatarBaseURL + hex.EncodeToString(sum[:])
}
