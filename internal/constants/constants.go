// Package constants provides centralized domain-specific constants
// for the entire nodepulse application.
package constants

// =============================================================================
// Cache Store key prefixes
// =============================================================================

const (
	// KeyPrefixConfig prefixes cached monitor configs: CFG:<identity>:<hostname>
	KeyPrefixConfig = "CFG"

	// KeyPrefixSeries prefixes ring series: TS:<identity>:<hostname>:<chart>:<index>
	KeyPrefixSeries = "TS"

	// KeyPrefixSnapshot prefixes overview snapshots: SNAP:<identity>:<hostname>:OVERVIEW
	KeyPrefixSnapshot = "SNAP"

	// SnapshotSuffix terminates the snapshot key.
	SnapshotSuffix = "OVERVIEW"

	// KeySeparator joins key parts.
	KeySeparator = ":"
)

// =============================================================================
// Aggregation policies
// =============================================================================

const (
	// PolicyNone keeps the last value written for a metric key.
	PolicyNone = "none"

	// PolicySum keeps the running total across all samples of a key.
	PolicySum = "sum"

	// PolicyAvg keeps the arithmetic mean across all samples of a key.
	PolicyAvg = "avg"

	// IndividualSuffix marks per-device policies: "<category>.individual".
	IndividualSuffix = ".individual"

	// UnknownDevice is the device name used when chart_id carries none.
	UnknownDevice = "unknown_device"

	// UnknownUnits is used when a sample reports no units.
	UnknownUnits = "unknown"
)

// ValidPolicies contains the scalar policy names. Individual policies are
// validated by suffix.
var ValidPolicies = []string{PolicyNone, PolicySum, PolicyAvg}

// IsValidPolicy checks if a scalar policy name is valid
func IsValidPolicy(p string) bool {
	for _, s := range ValidPolicies {
		if s == p {
			return true
		}
	}
	return false
}

// =============================================================================
// Special metric contexts
// =============================================================================

const (
	// SmartStatusContext is reduced to a single health field.
	SmartStatusContext = "smartctl.device_smart_status"

	// SmartStatusField is the derived field stored under the device.
	SmartStatusField = "device_smart_status.ok"

	// CPUFreqContext is the context whose per-core keys are folded.
	CPUFreqContext = "cpufreq.cpufreq"

	// CPUFreqUnits is the unit reported for the folded mean.
	CPUFreqUnits = "MHz"
)

// =============================================================================
// Snapshot codecs
// =============================================================================

const (
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
)

// ValidCompressions contains the supported snapshot codecs.
var ValidCompressions = []string{CompressionGzip, CompressionZstd}
