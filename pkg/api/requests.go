package api

// GenerateRequest is the body of POST /api/generate. ContentTypes is optional;
// omitted means the tier-intersected default of {blog}.
type GenerateRequest struct {
	Topic        string   `json:"topic"`
	ContentTypes []string `json:"content_types,omitempty"`
}

// InvalidateCacheRequest is the body of POST /api/admin/cache/invalidate.
// Exactly one of the fields should be set; All wins if combined.
type InvalidateCacheRequest struct {
	UserID      string `json:"user_id,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	All         bool   `json:"all,omitempty"`
}

// SetTierRequest is the body of POST /api/admin/users/:id/tier.
type SetTierRequest struct {
	Tier string `json:"tier"`
}
