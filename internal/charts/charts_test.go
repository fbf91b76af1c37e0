package charts

import (
	"slices"
	"testing"

	"github.com/xtxerr/nodepulse/internal/errors"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		catalog []Chart
		wantErr bool
	}{
		{"empty catalog", nil, false},
		{"single", []Chart{{Name: "A", Flag: 1 << 1}}, false},
		{"no name", []Chart{{Flag: 1 << 1}}, true},
		{"zero flag", []Chart{{Name: "A"}}, true},
		{"multi-bit flag", []Chart{{Name: "A", Flag: 3}}, true},
		{"overlapping flags", []Chart{{Name: "A", Flag: 1 << 2}, {Name: "B", Flag: 1 << 2}}, true},
		{"duplicate names", []Chart{{Name: "A", Flag: 1 << 1}, {Name: "A", Flag: 1 << 2}}, true},
		{"high bit", []Chart{{Name: "A", Flag: 1 << 63}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.catalog)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestDefaultCatalog(t *testing.T) {
	r := NewDefault()

	if got := len(r.Charts()); got != 11 {
		t.Fatalf("expected 11 charts, got %d", got)
	}

	want := []string{
		"CPU:USAGE", "CPU:AVGFREQ", "CPU:TEMP", "MEM:USAGE", "MEM:SWAP",
		"DISK:USAGE", "DISK:IO", "DISK:OPS", "NET:PACKETS", "NET:OCTETS", "SYS:POWER",
	}
	if !slices.Equal(r.Names(), want) {
		t.Errorf("names = %v, want %v", r.Names(), want)
	}

	c, ok := r.Lookup("NET:OCTETS")
	if !ok {
		t.Fatal("NET:OCTETS missing")
	}
	if c.Flag != 1<<10 || c.TranslationKey != "NodeNetOctets" {
		t.Errorf("unexpected NET:OCTETS entry: %+v", c)
	}
}

func TestEncodeDecode_RoundTripAllSubsets(t *testing.T) {
	r := NewDefault()
	names := r.Names()

	for subset := 0; subset < 1<<len(names); subset++ {
		var picked []string
		for i, n := range names {
			if subset&(1<<i) != 0 {
				picked = append(picked, n)
			}
		}

		mask, err := r.Encode(picked...)
		if err != nil {
			t.Fatalf("Encode(%v): %v", picked, err)
		}

		got := r.Decode(mask)
		if !slices.Equal(got, picked) {
			t.Fatalf("Decode(Encode(%v)) = %v", picked, got)
		}
	}
}

func TestEncode_CPUAndMem(t *testing.T) {
	r := NewDefault()

	mask, err := r.Encode("CPU:USAGE", "MEM:USAGE")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if mask != CPUUsage|MemUsage {
		t.Errorf("mask = %#x, want %#x", mask, CPUUsage|MemUsage)
	}

	got := r.Decode(mask)
	if !slices.Equal(got, []string{"CPU:USAGE", "MEM:USAGE"}) {
		t.Errorf("Decode = %v", got)
	}
}

func TestEncode_UnknownName(t *testing.T) {
	r := NewDefault()

	_, err := r.Encode("CPU:USAGE", "GPU:USAGE")
	if !errors.Is(err, errors.ErrUnknownChart) {
		t.Errorf("expected ErrUnknownChart, got %v", err)
	}
}

func TestFieldsForMask_CatalogOrder(t *testing.T) {
	r := NewDefault()

	got := r.FieldsForMask(MemSwap | CPUAvgFreq)
	want := []string{"cpufreq.cpufreq", "mem.swap.free", "mem.swap.used"}
	if !slices.Equal(got, want) {
		t.Errorf("FieldsForMask = %v, want %v", got, want)
	}

	if got := r.FieldsForMask(0); len(got) != 0 {
		t.Errorf("FieldsForMask(0) = %v, want empty", got)
	}
}

func TestFields_ReturnsCopy(t *testing.T) {
	r := NewDefault()

	fields, ok := r.Fields("DISK:IO")
	if !ok {
		t.Fatal("DISK:IO missing")
	}
	fields[0] = "mutated"

	again, _ := r.Fields("DISK:IO")
	if again[0] != "disk.io.reads" {
		t.Errorf("registry was mutated through returned slice: %v", again)
	}

	if _, ok := r.Fields("NOPE"); ok {
		t.Error("unknown chart should not be found")
	}
}

func TestIsValid(t *testing.T) {
	r := NewDefault()

	tests := []struct {
		name string
		mask Mask
		want bool
	}{
		{"zero", 0, false},
		{"bit zero only", 1, false},
		{"one known", CPUTemp, true},
		{"known plus stray high bit", SysPower | 1<<40, true},
		{"only stray bits", 1<<40 | 1<<12, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.IsValid(tt.mask); got != tt.want {
				t.Errorf("IsValid(%#x) = %v, want %v", uint64(tt.mask), got, tt.want)
			}
		})
	}

	if got := r.Unknown(SysPower | 1<<40); got != 1<<40 {
		t.Errorf("Unknown = %#x", uint64(got))
	}
}

func TestTranslationKeys(t *testing.T) {
	r := NewDefault()

	got := r.TranslationKeys(CPUUsage | DiskOps)
	want := []string{"NodeCPUUsage", "NodeDiskOPS"}
	if !slices.Equal(got, want) {
		t.Errorf("TranslationKeys = %v, want %v", got, want)
	}
}

func TestString(t *testing.T) {
	r := NewDefault()

	if got := r.String(0); got != "none" {
		t.Errorf("String(0) = %q", got)
	}
	if got := r.String(CPUUsage | NetOctets); got != "CPU:USAGE|NET:OCTETS" {
		t.Errorf("String = %q", got)
	}
}

func BenchmarkFieldsForMask(b *testing.B) {
	r := NewDefault()
	mask := CPUUsage | MemUsage | DiskIO | NetOctets

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.FieldsForMask(mask)
	}
}
