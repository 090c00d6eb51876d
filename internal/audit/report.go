package audit

import (
	"encoding/json"
	"fmt"
	"math"

	"lumen/internal/domain"
)

// Audits the report must contain for a result to be usable.
var requiredAudits = []string{
	"first-contentful-paint",
	"largest-contentful-paint",
	"total-blocking-time",
	"cumulative-layout-shift",
}

// rawReport is the subset of the engine's JSON report this service reads.
type rawReport struct {
	Categories map[string]struct {
		Score *float64 `json:"score"`
	} `json:"categories"`
	Audits map[string]struct {
		NumericValue *float64 `json:"numericValue"`
	} `json:"audits"`
}

// Report is a validated audit report. It exists only after the presence
// checks pass, so consumers never see partially shaped data.
type Report struct {
	PerformanceScore float64 // raw category score in [0,1]
	FCP              *float64
	LCP              *float64
	TBT              *float64
	CLS              *float64
	Raw              json.RawMessage
}

// parseReport decodes and validates the raw engine report. A missing
// performance category or missing required audit yields a
// MissingMetricError naming what is absent. An audit that is present but
// reports no numeric value passes through as nil, which is distinct from
// the audit being missing.
func parseReport(raw json.RawMessage) (*Report, error) {
	var rr rawReport
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, &domain.AuditExecutionError{Err: fmt.Errorf("malformed report: %w", err)}
	}

	perf, ok := rr.Categories["performance"]
	if !ok {
		return nil, &domain.MissingMetricError{Audits: []string{"performance category"}}
	}

	var missing []string
	for _, name := range requiredAudits {
		if _, ok := rr.Audits[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.MissingMetricError{Audits: missing}
	}

	score := 0.0
	if perf.Score != nil {
		score = *perf.Score
	}
	return &Report{
		PerformanceScore: score,
		FCP:              rr.Audits["first-contentful-paint"].NumericValue,
		LCP:              rr.Audits["largest-contentful-paint"].NumericValue,
		TBT:              rr.Audits["total-blocking-time"].NumericValue,
		CLS:              rr.Audits["cumulative-layout-shift"].NumericValue,
		Raw:              raw,
	}, nil
}

// scoreOutOf100 converts a raw category score into the 0-100 integer scale,
// clamped at both ends.
func scoreOutOf100(raw float64) int {
	score := int(math.Round(raw * 100))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
