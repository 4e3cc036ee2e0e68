package locate

// RankedBuilding is one entry in the ordered response list.
type RankedBuilding struct {
	BuildingID string  `json:"building_id"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	Similarity float64 `json:"similarity,omitempty"` // set on the visual path only
}

// Timings is the per-stage latency breakdown of one request, in
// milliseconds.
type Timings struct {
	QueryMs        float64 `json:"query_ms"`
	ScoreMs        float64 `json:"score_ms"`
	DisambiguateMs float64 `json:"disambiguate_ms"`
	TotalMs        float64 `json:"total_ms"`
}

// IdentificationResult is the response for one identification request.
type IdentificationResult struct {
	RequestID string           `json:"request_id"`
	State     OutcomeState     `json:"state"`
	Matches   []RankedBuilding `json:"matches"`
	Degraded  bool             `json:"degraded,omitempty"` // visual stage skipped on model failure
	Attempts  int              `json:"attempts"`           // cone queries issued including widening retries
	Timings   Timings          `json:"timings"`
}

// Best returns the top match, or nil for the none state.
func (r *IdentificationResult) Best() *RankedBuilding {
	if len(r.Matches) == 0 {
		return nil
	}
	return &r.Matches[0]
}
