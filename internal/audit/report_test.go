package audit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen/internal/domain"
)

// reportJSON builds a minimal engine report. Pass nil for a metric to emit
// the audit with no numericValue; omit the key from audits to leave the
// audit out entirely.
func reportJSON(t *testing.T, score *float64, audits map[string]*float64) json.RawMessage {
	t.Helper()
	auditObjs := map[string]any{}
	for name, v := range audits {
		if v == nil {
			auditObjs[name] = map[string]any{}
		} else {
			auditObjs[name] = map[string]any{"numericValue": *v}
		}
	}
	doc := map[string]any{
		"categories": map[string]any{
			"performance": map[string]any{"score": score},
		},
		"audits": auditObjs,
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	return raw
}

func fullAudits() map[string]*float64 {
	fcp, lcp, tbt, cls := 1200.5, 2400.0, 310.0, 0.02
	return map[string]*float64{
		"first-contentful-paint":   &fcp,
		"largest-contentful-paint": &lcp,
		"total-blocking-time":      &tbt,
		"cumulative-layout-shift":  &cls,
	}
}

func TestParseReportExtractsMetrics(t *testing.T) {
	score := 0.87
	report, err := parseReport(reportJSON(t, &score, fullAudits()))
	require.NoError(t, err)

	assert.Equal(t, 0.87, report.PerformanceScore)
	require.NotNil(t, report.FCP)
	assert.Equal(t, 1200.5, *report.FCP)
	require.NotNil(t, report.CLS)
	assert.Equal(t, 0.02, *report.CLS)
}

func TestParseReportMissingAudit(t *testing.T) {
	audits := fullAudits()
	delete(audits, "cumulative-layout-shift")
	score := 0.5

	_, err := parseReport(reportJSON(t, &score, audits))
	var missing *domain.MissingMetricError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"cumulative-layout-shift"}, missing.Audits)
}

func TestParseReportMissingSeveralAudits(t *testing.T) {
	audits := fullAudits()
	delete(audits, "first-contentful-paint")
	delete(audits, "total-blocking-time")
	score := 0.5

	_, err := parseReport(reportJSON(t, &score, audits))
	var missing *domain.MissingMetricError
	require.ErrorAs(t, err, &missing)
	assert.ElementsMatch(t, []string{"first-contentful-paint", "total-blocking-time"}, missing.Audits)
}

func TestParseReportMissingPerformanceCategory(t *testing.T) {
	raw := json.RawMessage(`{"categories":{"seo":{"score":1}},"audits":{}}`)
	_, err := parseReport(raw)
	var missing *domain.MissingMetricError
	require.ErrorAs(t, err, &missing)
}

func TestParseReportNullNumericValueIsNotMissing(t *testing.T) {
	audits := fullAudits()
	audits["total-blocking-time"] = nil
	score := 0.9

	report, err := parseReport(reportJSON(t, &score, audits))
	require.NoError(t, err)
	assert.Nil(t, report.TBT)
	assert.NotNil(t, report.FCP)
}

func TestParseReportNullCategoryScore(t *testing.T) {
	report, err := parseReport(reportJSON(t, nil, fullAudits()))
	require.NoError(t, err)
	assert.Equal(t, 0.0, report.PerformanceScore)
}

func TestParseReportMalformedJSON(t *testing.T) {
	_, err := parseReport(json.RawMessage(`{not json`))
	var exec *domain.AuditExecutionError
	require.ErrorAs(t, err, &exec)
}

func TestScoreOutOf100(t *testing.T) {
	tests := []struct {
		name string
		raw  float64
		want int
	}{
		{name: "zero", raw: 0, want: 0},
		{name: "one", raw: 1, want: 100},
		{name: "rounds_up", raw: 0.456, want: 46},
		{name: "rounds_down", raw: 0.452, want: 45},
		{name: "half_rounds_up", raw: 0.875, want: 88},
		{name: "clamps_low", raw: -0.2, want: 0},
		{name: "clamps_high", raw: 1.3, want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scoreOutOf100(tt.raw))
		})
	}
}
