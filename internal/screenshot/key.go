package screenshot

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
)

// CacheKey identifies a cached screenshot. It is a 64 character lowercase hex string.
type CacheKey string

func (k CacheKey) String() string { return string(k) }

// Key derives the cache key for r.
//
// Only the normalized URL, the view and the full-page flag take part. Wait time, quality,
// wait condition, image/scroll flags and NoCache are ignored on purpose: requests that differ
// only in those options share one cache slot and overwrite each other. This trades some
// staleness for hit rate and is kept as a product decision.
func Key(r Request) CacheKey {
	canonical := NormalizeURL(r.URL) + "|" + string(r.View) + "|" + strconv.FormatBool(r.FullPage)
	sum := sha256.Sum256([]byte(canonical))
	return CacheKey(hex.EncodeToString(sum[:]))
}

// NormalizeURL lowercases scheme and host, drops the fragment and gives an empty path a "/".
// Input that does not parse is returned trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// ValidKey reports whether s has the shape produced by Key.
func ValidKey(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
