package device

import (
	"testing"

	"gorgonia.org/tensor"
)

func TestSelectPriority(t *testing.T) {
	cpu := Default()
	cuda := New(CUDA, nil)
	metal := New(Metal, nil)

	tests := []struct {
		name      string
		available []Device
		want      Kind
	}{
		{"none", nil, CPU},
		{"cpu only", []Device{cpu}, CPU},
		{"cuda over cpu", []Device{cpu, cuda}, CUDA},
		{"metal over cuda", []Device{cuda, metal, cpu}, Metal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Select(tc.available...).Kind(); got != tc.want {
				t.Errorf("Select() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestPrefer(t *testing.T) {
	cuda := New(CUDA, nil)
	metal := New(Metal, nil)

	if got := Prefer(CUDA, metal, cuda).Kind(); got != CUDA {
		t.Errorf("Prefer(CUDA) = %s", got)
	}
	if got := Prefer(CUDA, metal).Kind(); got != Metal {
		t.Errorf("Prefer(CUDA) without cuda = %s, want metal", got)
	}
}

func TestParseKind(t *testing.T) {
	tests := map[string]Kind{"cpu": CPU, "CUDA": CUDA, "mps": Metal, "metal": Metal}
	for in, want := range tests {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %s, %v; want %s", in, got, err, want)
		}
	}
	for _, in := range []string{"tpu", "", "auto"} {
		if _, err := ParseKind(in); err == nil {
			t.Errorf("ParseKind(%q) succeeded", in)
		}
	}
}

func TestResolve(t *testing.T) {
	metal := New(Metal, nil)
	cuda := New(CUDA, nil)
	cpu := Default()

	tests := []struct {
		prefer    string
		available []Device
		want      Kind
	}{
		{"", []Device{cpu, cuda, metal}, Metal},
		{"auto", []Device{cpu, cuda}, CUDA},
		{" Auto ", []Device{cpu}, CPU},
		{"cpu", []Device{cpu, metal}, CPU},
		{"cuda", []Device{cpu, metal}, Metal},
		{"", nil, CPU},
	}
	for _, tc := range tests {
		got, err := Resolve(tc.prefer, tc.available...)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tc.prefer, err)
		}
		if got.Kind() != tc.want {
			t.Errorf("Resolve(%q) = %s, want %s", tc.prefer, got, tc.want)
		}
	}

	if _, err := Resolve("tpu", cpu); err == nil {
		t.Error("Resolve(tpu) succeeded")
	}
	if got := Available(); len(got) != 1 || got[0].Kind() != CPU {
		t.Errorf("Available() = %v", got)
	}
}

func TestZeroDeviceEngine(t *testing.T) {
	var d Device
	if _, ok := d.Engine().(tensor.StdEng); !ok {
		t.Errorf("zero Device engine = %T, want tensor.StdEng", d.Engine())
	}
}
