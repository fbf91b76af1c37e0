package netdata

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xtxerr/nodepulse/internal/constants"
	"github.com/xtxerr/nodepulse/internal/errors"
)

// PolicyKind selects how samples sharing a metric key are reduced.
type PolicyKind int

const (
	// PolicyNone keeps the last value.
	PolicyNone PolicyKind = iota
	// PolicySum keeps the total.
	PolicySum
	// PolicyAvg keeps the mean.
	PolicyAvg
	// PolicyIndividual routes values per device into ParsedResult.Individual.
	PolicyIndividual
)

func (k PolicyKind) String() string {
	switch k {
	case PolicyNone:
		return constants.PolicyNone
	case PolicySum:
		return constants.PolicySum
	case PolicyAvg:
		return constants.PolicyAvg
	case PolicyIndividual:
		return "individual"
	default:
		return fmt.Sprintf("PolicyKind(%d)", int(k))
	}
}

// Policy is a parsed policy entry.
type Policy struct {
	Kind     PolicyKind
	Category string // set for PolicyIndividual
}

// String renders the policy in its config form.
func (p Policy) String() string {
	if p.Kind == PolicyIndividual {
		return p.Category + constants.IndividualSuffix
	}
	return p.Kind.String()
}

// ParsePolicy parses "none", "sum", "avg" or "<category>.individual".
func ParsePolicy(s string) (Policy, error) {
	if constants.IsValidPolicy(s) {
		switch s {
		case constants.PolicySum:
			return Policy{Kind: PolicySum}, nil
		case constants.PolicyAvg:
			return Policy{Kind: PolicyAvg}, nil
		default:
			return Policy{Kind: PolicyNone}, nil
		}
	}

	category, ok := strings.CutSuffix(s, constants.IndividualSuffix)
	if !ok {
		return Policy{}, fmt.Errorf("%w: unknown aggregation policy %q", errors.ErrInvalidConfig, s)
	}
	if category == "" || strings.Contains(category, ".") {
		return Policy{}, fmt.Errorf("%w: malformed individual policy %q", errors.ErrInvalidConfig, s)
	}
	return Policy{Kind: PolicyIndividual, Category: category}, nil
}

// Rules is the allow-list of chart contexts and their aggregation policies.
// Every allowed context has exactly one policy, so lookups on normalized
// samples always succeed. Rules are read-only after construction.
type Rules struct {
	policies map[string]Policy
}

// NewRules builds rules from a context -> policy-string table.
func NewRules(table map[string]string) (*Rules, error) {
	r := &Rules{policies: make(map[string]Policy, len(table))}

	var errs []error
	for ctx, raw := range table {
		if ctx == "" {
			errs = append(errs, fmt.Errorf("%w: empty chart context", errors.ErrInvalidConfig))
			continue
		}
		p, err := ParsePolicy(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("context %s: %w", ctx, err))
			continue
		}
		r.policies[ctx] = p
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

// DefaultPolicyTable returns the built-in context policies.
func DefaultPolicyTable() map[string]string {
	return map[string]string{
		"system.cpu":                                "none",
		"system.load":                               "none",
		"system.ram":                                "none",
		"mem.swap":                                  "none",
		"system.net":                                "none",
		"net.packets":                               "sum",
		"disk.io":                                   "sum",
		"disk.ops":                                  "sum",
		"disk.space":                                "sum",
		"cpufreq.cpufreq":                           "avg",
		"sensors.chip_sensor_power_average":         "none",
		"sensors.chip_sensor_temperature":           "none",
		"systemd.service":                           "none",
		"smartctl.device_temperature":               "disk.individual",
		"smartctl.device_power_on_time":             "disk.individual",
		"smartctl.device_smart_status":              "disk.individual",
		"smartctl.device_ata_smart_error_log_count": "disk.individual",
	}
}

// DefaultRules returns the built-in rules.
func DefaultRules() *Rules {
	r, err := NewRules(DefaultPolicyTable())
	if err != nil {
		panic("netdata: default rules invalid: " + err.Error())
	}
	return r
}

// Allowed reports whether samples of chartContext are kept.
func (r *Rules) Allowed(chartContext string) bool {
	_, ok := r.policies[chartContext]
	return ok
}

// Policy returns the policy for chartContext.
func (r *Rules) Policy(chartContext string) (Policy, bool) {
	p, ok := r.policies[chartContext]
	return p, ok
}

// Contexts returns the allowed contexts, sorted.
func (r *Rules) Contexts() []string {
	out := make([]string, 0, len(r.policies))
	for ctx := range r.policies {
		out = append(out, ctx)
	}
	sort.Strings(out)
	return out
}
