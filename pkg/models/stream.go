package models

// ModelCached is reported as StreamMetadata.Model for responses replayed from cache.
const ModelCached = "cached"

// StreamMetadata accompanies the terminal StreamToken of a generation.
type StreamMetadata struct {
	Model            string   `json:"model"`
	TotalTokens      int      `json:"total_tokens"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
	RetryCount       int      `json:"retry_count"`
	QualityScore     *float64 `json:"quality_score,omitempty"`
	Regenerated      bool     `json:"regenerated,omitempty"`
}

// StreamToken is one unit delivered to a subscriber. Every generation emits any
// number of tokens with Done=false followed by exactly one token with Done=true.
type StreamToken struct {
	Token    string          `json:"token,omitempty"`
	Done     bool            `json:"done"`
	Error    string          `json:"error,omitempty"`
	Metadata *StreamMetadata `json:"metadata,omitempty"`

	// Notice marks informational in-band text (retry and regeneration notices)
	// that is not part of the generated response.
	Notice bool `json:"notice,omitempty"`

	// Variation is the variation index in parallel-variation mode, 0 otherwise.
	Variation int `json:"variation,omitempty"`
}

// IsError reports whether the token is a terminal failure.
func (t StreamToken) IsError() bool {
	return t.Done && t.Error != ""
}
