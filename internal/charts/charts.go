// Package charts defines the catalog of chart groups a host can subscribe to
// and the bit-mask encoding of those subscriptions.
//
// A Registry is built once at startup and shared by pointer. It has no
// mutators, so concurrent reads need no locking.
package charts

import (
	"fmt"
	"math/bits"
	"slices"
	"strings"

	"github.com/xtxerr/nodepulse/internal/errors"
)

// Mask is an OR of chart bit flags.
type Mask uint64

// Catalog bit flags. Bit 0 is unused.
const (
	CPUUsage   Mask = 1 << 1
	CPUAvgFreq Mask = 1 << 2
	CPUTemp    Mask = 1 << 3
	MemUsage   Mask = 1 << 4
	MemSwap    Mask = 1 << 5
	DiskUsage  Mask = 1 << 6
	DiskIO     Mask = 1 << 7
	DiskOps    Mask = 1 << 8
	NetPackets Mask = 1 << 9
	NetOctets  Mask = 1 << 10
	SysPower   Mask = 1 << 11
)

// Chart is one catalog entry.
type Chart struct {
	Name           string   `json:"name" yaml:"name"`
	Flag           Mask     `json:"flag" yaml:"flag"`
	TranslationKey string   `json:"translation_key" yaml:"translation_key"`
	Fields         []string `json:"fields" yaml:"fields"`
}

// Registry is an immutable chart catalog.
type Registry struct {
	charts []Chart
	byName map[string]int
	known  Mask
}

// New validates the catalog and builds a registry. Flags must be single
// bits, pairwise disjoint, and names must be unique and non-empty.
func New(catalog []Chart) (*Registry, error) {
	r := &Registry{
		charts: make([]Chart, 0, len(catalog)),
		byName: make(map[string]int, len(catalog)),
	}

	for i, c := range catalog {
		if c.Name == "" {
			return nil, fmt.Errorf("%w: chart %d has no name", errors.ErrInvalidConfig, i)
		}
		if bits.OnesCount64(uint64(c.Flag)) != 1 {
			return nil, fmt.Errorf("%w: chart %s flag %#x is not a single bit", errors.ErrInvalidConfig, c.Name, uint64(c.Flag))
		}
		if r.known&c.Flag != 0 {
			return nil, fmt.Errorf("%w: chart %s reuses flag %#x", errors.ErrInvalidConfig, c.Name, uint64(c.Flag))
		}
		if _, dup := r.byName[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate chart name %s", errors.ErrInvalidConfig, c.Name)
		}

		r.known |= c.Flag
		r.byName[c.Name] = len(r.charts)
		r.charts = append(r.charts, Chart{
			Name:           c.Name,
			Flag:           c.Flag,
			TranslationKey: c.TranslationKey,
			Fields:         slices.Clone(c.Fields),
		})
	}

	return r, nil
}

// NewDefault builds the standard Netdata catalog.
func NewDefault() *Registry {
	r, err := New(DefaultCatalog())
	if err != nil {
		panic("charts: default catalog invalid: " + err.Error())
	}
	return r
}

// DefaultCatalog returns a fresh copy of the standard catalog.
func DefaultCatalog() []Chart {
	return []Chart{
		{Name: "CPU:USAGE", Flag: CPUUsage, TranslationKey: "NodeCPUUsage", Fields: []string{
			"system.cpu.steal", "system.cpu.user", "system.cpu.system", "system.cpu.nice", "system.cpu.iowait",
		}},
		{Name: "CPU:AVGFREQ", Flag: CPUAvgFreq, TranslationKey: "NodeCPUAvrageFrequency", Fields: []string{
			"cpufreq.cpufreq",
		}},
		{Name: "CPU:TEMP", Flag: CPUTemp, TranslationKey: "NodeCPUTempreture", Fields: []string{
			"sensors.chip_sensor_temperature.input",
		}},
		{Name: "MEM:USAGE", Flag: MemUsage, TranslationKey: "NodeMemoryUsage", Fields: []string{
			"system.ram.used", "system.ram.cached", "system.ram.buffers",
		}},
		{Name: "MEM:SWAP", Flag: MemSwap, TranslationKey: "NodeMemorySwap", Fields: []string{
			"mem.swap.free", "mem.swap.used",
		}},
		{Name: "DISK:USAGE", Flag: DiskUsage, TranslationKey: "NodeDiskUsage", Fields: []string{
			"disk.space.used",
		}},
		{Name: "DISK:IO", Flag: DiskIO, TranslationKey: "NodeDiskIO", Fields: []string{
			"disk.io.reads", "disk.io.writes",
		}},
		{Name: "DISK:OPS", Flag: DiskOps, TranslationKey: "NodeDiskOPS", Fields: []string{
			"disk.ops.reads", "disk.ops.writes",
		}},
		{Name: "NET:PACKETS", Flag: NetPackets, TranslationKey: "NodeNetPackets", Fields: []string{
			"net.packets.received", "net.packets.sent", "net.packets.multicast",
		}},
		{Name: "NET:OCTETS", Flag: NetOctets, TranslationKey: "NodeNetOctets", Fields: []string{
			"system.net.InOctets", "system.net.OutOctets",
		}},
		{Name: "SYS:POWER", Flag: SysPower, TranslationKey: "NodeSystemPower", Fields: []string{
			"sensors.chip_sensor_power_average.average",
		}},
	}
}

// Encode ORs the flags of the named charts. Unknown names are an error.
func (r *Registry) Encode(names ...string) (Mask, error) {
	var m Mask
	for _, name := range names {
		i, ok := r.byName[name]
		if !ok {
			return 0, fmt.Errorf("%w: %s", errors.ErrUnknownChart, name)
		}
		m |= r.charts[i].Flag
	}
	return m, nil
}

// Decode returns the names of every chart whose flag is set in mask, in
// catalog order.
func (r *Registry) Decode(mask Mask) []string {
	var names []string
	for _, c := range r.charts {
		if mask&c.Flag == c.Flag {
			names = append(names, c.Name)
		}
	}
	return names
}

// FieldsForMask concatenates the fields of every chart in mask, in catalog
// order.
func (r *Registry) FieldsForMask(mask Mask) []string {
	var fields []string
	for _, c := range r.charts {
		if mask&c.Flag == c.Flag {
			fields = append(fields, c.Fields...)
		}
	}
	return fields
}

// Fields returns the fields of one chart.
func (r *Registry) Fields(name string) ([]string, bool) {
	i, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(r.charts[i].Fields), true
}

// Lookup returns a copy of the named chart.
func (r *Registry) Lookup(name string) (Chart, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Chart{}, false
	}
	c := r.charts[i]
	c.Fields = slices.Clone(c.Fields)
	return c, true
}

// IsValid reports whether at least one catalog flag is set in mask.
// Bits outside the catalog do not invalidate a mask.
func (r *Registry) IsValid(mask Mask) bool {
	return mask&r.known != 0
}

// Unknown returns the bits of mask that no catalog entry defines.
func (r *Registry) Unknown(mask Mask) Mask {
	return mask &^ r.known
}

// TranslationKeys returns the UI translation keys of the charts in mask.
func (r *Registry) TranslationKeys(mask Mask) []string {
	var keys []string
	for _, c := range r.charts {
		if mask&c.Flag == c.Flag {
			keys = append(keys, c.TranslationKey)
		}
	}
	return keys
}

// Charts returns a copy of the catalog.
func (r *Registry) Charts() []Chart {
	out := make([]Chart, len(r.charts))
	for i, c := range r.charts {
		c.Fields = slices.Clone(c.Fields)
		out[i] = c
	}
	return out
}

// Names returns every chart name in catalog order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.charts))
	for i, c := range r.charts {
		names[i] = c.Name
	}
	return names
}

// String renders a mask as its chart names joined by "|".
func (r *Registry) String(mask Mask) string {
	names := r.Decode(mask)
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}
