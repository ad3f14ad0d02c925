// Package cache implements the content fingerprint cache: deterministic
// keying over (topic, content types, model, moderation version), single-flight
// build coordination, and TTL/LRU-bounded storage of artifact bundles.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/forgeworks/draftforge/pkg/models"
)

// cacheSchemaVersion participates in every fingerprint. Bump it when the
// bundle layout changes so stale deployments cannot read incompatible entries.
const cacheSchemaVersion = 1

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeTopic canonicalizes a topic for cache keying: Unicode NFKC,
// lowercase, internal whitespace collapsed, trimmed. The original topic is
// preserved separately for display.
func NormalizeTopic(topic string) string {
	s := norm.NFKC.String(topic)
	s = strings.ToLower(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Fingerprint computes the deterministic cache key for a generation request.
// Content types are sorted so request order does not split the cache.
func Fingerprint(normalizedTopic string, types []models.ContentType, modelID string, moderationVersion int) string {
	sorted := make([]string, len(types))
	for i, t := range types {
		sorted[i] = string(t)
	}
	sort.Strings(sorted)

	h := sha256.New()
	// \x1f separates tuple fields; it cannot appear in normalized topics
	// (collapsed to plain spaces) nor in type/model identifiers.
	fmt.Fprintf(h, "%s\x1f%s\x1f%s\x1f%d\x1f%d",
		normalizedTopic,
		strings.Join(sorted, ","),
		modelID,
		moderationVersion,
		cacheSchemaVersion,
	)
	return hex.EncodeToString(h.Sum(nil))
}
