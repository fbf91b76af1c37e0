package netdata

import (
	"regexp"

	"github.com/xtxerr/nodepulse/internal/constants"
)

var (
	// devicePattern captures the token after "device_" up to the next "_".
	devicePattern = regexp.MustCompile(`device_(.*?)_`)

	cpuFreqCorePattern = regexp.MustCompile(`^cpufreq\.cpufreq\.cpu[0-9]+$`)
)

// Normalize keeps the samples that belong to the first sample's host and
// whose chart context is allowed, projected to the fields aggregation needs.
// Samples from other hosts are dropped without error. The returned slice is
// freshly allocated; samples is not modified.
func Normalize(samples []Sample, rules *Rules) (string, []NormalizedSample) {
	if len(samples) == 0 {
		return "", nil
	}

	hostname := samples[0].Hostname
	out := make([]NormalizedSample, 0, len(samples))
	for _, s := range samples {
		if s.Hostname != hostname || !rules.Allowed(s.ChartContext) {
			continue
		}
		out = append(out, NormalizedSample{
			ChartID:      s.ChartID,
			ChartContext: s.ChartContext,
			Units:        s.Units,
			ID:           s.ID,
			Value:        s.Value,
		})
	}
	return hostname, out
}

// DeviceFromChartID extracts the device name from a chart id such as
// "smartctl_device_sdc_temperature". Ids without a device marker map to
// "unknown_device".
func DeviceFromChartID(chartID string) string {
	m := devicePattern.FindStringSubmatch(chartID)
	if m == nil {
		return constants.UnknownDevice
	}
	return m[1]
}

type accumulator struct {
	total float64
	count int
	units string
}

// Aggregate reduces normalized samples into a ParsedResult.
//
// Samples are folded in input order according to their context policy.
// Averages are finalized after folding, then per-core CPU frequencies are
// collapsed into a single "cpufreq.cpufreq" mean. Aggregate never fails;
// an empty input yields an empty result.
func Aggregate(hostname string, samples []NormalizedSample, rules *Rules) *ParsedResult {
	result := NewParsedResult(hostname)
	sums := make(map[string]*accumulator)
	avgs := make(map[string]*accumulator)

	for _, s := range samples {
		policy, ok := rules.Policy(s.ChartContext)
		if !ok {
			continue
		}
		units := s.Units
		if units == "" {
			units = constants.UnknownUnits
		}

		if policy.Kind == PolicyIndividual {
			foldIndividual(result, policy.Category, s)
			continue
		}

		key := s.MetricKey()
		switch policy.Kind {
		case PolicySum:
			fold(sums, key, s.Value, units)
		case PolicyAvg:
			fold(avgs, key, s.Value, units)
		default:
			result.Metrics[key] = MetricValue{Value: s.Value, Units: units}
		}
	}

	for key, acc := range sums {
		result.Metrics[key] = MetricValue{Value: acc.total, Units: acc.units}
	}
	for key, acc := range avgs {
		result.Metrics[key] = MetricValue{Value: acc.total / float64(acc.count), Units: acc.units}
	}

	collapseCPUFreq(result)
	return result
}

// Parse normalizes and aggregates samples in one call.
func Parse(samples []Sample, rules *Rules) *ParsedResult {
	hostname, normalized := Normalize(samples, rules)
	return Aggregate(hostname, normalized, rules)
}

func fold(into map[string]*accumulator, key string, v float64, units string) {
	acc, ok := into[key]
	if !ok {
		acc = &accumulator{units: units}
		into[key] = acc
	}
	acc.total += v
	acc.count++
}

func foldIndividual(result *ParsedResult, category string, s NormalizedSample) {
	devices, ok := result.Individual[category]
	if !ok {
		devices = make(map[string]map[string]float64)
		result.Individual[category] = devices
	}
	device := DeviceFromChartID(s.ChartID)
	fields, ok := devices[device]
	if !ok {
		fields = make(map[string]float64)
		devices[device] = fields
	}

	if s.ChartContext != constants.SmartStatusContext {
		fields[s.ID] = s.Value
		return
	}

	// Last matching sample wins; a later "passed" clears an earlier "failed".
	if _, seen := fields[constants.SmartStatusField]; !seen {
		fields[constants.SmartStatusField] = 0
	}
	switch {
	case s.ID == "failed" && s.Value == 1:
		fields[constants.SmartStatusField] = 0
	case s.ID == "passed" && s.Value == 1:
		fields[constants.SmartStatusField] = 1
	}
}

func collapseCPUFreq(result *ParsedResult) {
	var total float64
	var count int
	for key, mv := range result.Metrics {
		if !cpuFreqCorePattern.MatchString(key) {
			continue
		}
		total += mv.Value
		count++
		delete(result.Metrics, key)
	}
	if count > 0 {
		result.Metrics[constants.CPUFreqContext] = MetricValue{
			Value: total / float64(count),
			Units: constants.CPUFreqUnits,
		}
	}
}
