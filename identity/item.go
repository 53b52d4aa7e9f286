package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// ItemIDFromURL returns the marketplace item id carried in a listing URL:
// the path after /itm/ up to the query string. Slug URLs of the form
// /itm/<slug>/<id> yield the last segment. Returns "" when there is no /itm/ path.
func ItemIDFromURL(raw string) string {
	_, rest, ok := strings.Cut(raw, "/itm/")
	if !ok {
		return ""
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return ""
	}
	if i := strings.LastIndex(rest, "/"); i >= 0 {
		rest = rest[i+1:]
	}
	return rest
}

// EPIDFromURL extracts the product catalog id from the epid query parameter.
func EPIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(u.Query().Get("epid"))
}

// ContentKey hashes arbitrary bytes into a short stable key, used for archived media.
func ContentKey(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}
