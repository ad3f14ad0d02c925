package models

// QualityMetrics carries the simple structural measurements attached to
// blog artifacts.
type QualityMetrics struct {
	WordCount   int     `json:"word_count"`
	CharCount   int     `json:"char_count"`
	ReadMinutes float64 `json:"read_minutes"`
}

// ArtifactPayload is the in-memory form of one produced artifact, used by the
// event bus, the content cache, and the complete-event snapshot. The durable
// form lives in the artifacts table.
type ArtifactPayload struct {
	ArtifactID string          `json:"artifact_id,omitempty"`
	Type       ContentType     `json:"artifact_type"`
	Content    string          `json:"content,omitempty"`
	AssetURI   string          `json:"asset_uri,omitempty"`
	Metrics    *QualityMetrics `json:"quality_metrics,omitempty"`
}

// Bundle maps content type to produced artifact. A bundle is complete when it
// holds an entry for every requested type; optional types that failed
// validation twice are simply absent.
type Bundle map[ContentType]ArtifactPayload

// Clone returns a shallow copy of the bundle. Payload values are copied;
// metrics pointers are shared (metrics are write-once).
func (b Bundle) Clone() Bundle {
	if b == nil {
		return nil
	}
	out := make(Bundle, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}
