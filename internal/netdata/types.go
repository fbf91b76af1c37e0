// Package netdata normalizes and aggregates metric batches pushed by Netdata
// agents.
//
// A batch flows through two pure stages:
//
//	samples -> Normalize -> []NormalizedSample -> Aggregate -> *ParsedResult
//
// Neither stage mutates its input. Both are driven by Rules, which hold the
// context allow-list and the per-context aggregation policy.
package netdata

// RawSample is the wire form of one pushed metric. Pointer fields record
// presence so the validator can tell a missing field from a zero value.
type RawSample struct {
	Prefix       *string        `json:"prefix"`
	Hostname     *string        `json:"hostname"`
	Labels       map[string]any `json:"labels"`
	ChartID      *string        `json:"chart_id"`
	ChartName    *string        `json:"chart_name"`
	ChartFamily  *string        `json:"chart_family"`
	ChartContext *string        `json:"chart_context"`
	ChartType    *string        `json:"chart_type"`
	Units        *string        `json:"units"`
	ID           *string        `json:"id"`
	Name         *string        `json:"name"`
	Value        *float64       `json:"value"`
	Timestamp    *float64       `json:"timestamp"`
}

// Sample is a validated metric point. It is never mutated after validation.
type Sample struct {
	Hostname     string
	ChartID      string
	ChartContext string
	Units        string
	ID           string
	Value        float64
	Timestamp    *int64
	Prefix       string
	Labels       map[string]any
	ChartName    string
	ChartFamily  string
	ChartType    string
	Name         string
}

// NormalizedSample is the projection of a Sample that aggregation needs.
type NormalizedSample struct {
	ChartID      string
	ChartContext string
	Units        string
	ID           string
	Value        float64
}

// MetricKey returns "<chart_context>.<id>".
func (s NormalizedSample) MetricKey() string {
	return s.ChartContext + "." + s.ID
}

// MetricValue is one aggregated scalar metric.
type MetricValue struct {
	Value float64 `json:"value"`
	Units string  `json:"units"`
}

// ParsedResult is the per-host aggregation output of one ingestion event.
type ParsedResult struct {
	Hostname string `json:"hostname"`

	// Individual is category -> device -> field -> value.
	Individual map[string]map[string]map[string]float64 `json:"individual"`

	// Metrics is keyed by "<chart_context>.<id>".
	Metrics map[string]MetricValue `json:"metrics"`
}

// NewParsedResult returns an empty result for hostname.
func NewParsedResult(hostname string) *ParsedResult {
	return &ParsedResult{
		Hostname:   hostname,
		Individual: make(map[string]map[string]map[string]float64),
		Metrics:    make(map[string]MetricValue),
	}
}

// Metric returns the aggregated value for key.
func (r *ParsedResult) Metric(key string) (MetricValue, bool) {
	if r == nil {
		return MetricValue{}, false
	}
	v, ok := r.Metrics[key]
	return v, ok
}
