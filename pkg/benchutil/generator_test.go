package benchutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateDeterministic(t *testing.T) {
	cfg := GeneratorConfig{NumLines: 500, Distinct: 50, CaseVariants: true, CRLFRatio: 0.3}
	a := NewGenerator(cfg).Generate()
	b := NewGenerator(cfg).Generate()

	if !bytes.Equal(a.Input, b.Input) || !bytes.Equal(a.Expected, b.Expected) {
		t.Error("same seed should produce identical data")
	}
}

func TestGenerateCounts(t *testing.T) {
	d := NewGenerator(GeneratorConfig{NumLines: 1000, Distinct: 20}).Generate()

	if d.Lines != 1000 {
		t.Errorf("Lines = %d, want 1000", d.Lines)
	}
	if d.Unique < 1 || d.Unique > 20 {
		t.Errorf("Unique = %d, want 1..20", d.Unique)
	}
	if got := bytes.Count(d.Input, []byte("\n")); got != 1000 {
		t.Errorf("input has %d newlines, want 1000", got)
	}
	if got := bytes.Count(d.Expected, []byte("\n")); got != d.Unique {
		t.Errorf("expected has %d newlines, want %d", got, d.Unique)
	}
	if d.Duplicates() != d.Lines-d.Unique {
		t.Errorf("Duplicates() = %d", d.Duplicates())
	}
}

func TestGenerateAllDistinct(t *testing.T) {
	d := NewGenerator(GeneratorConfig{NumLines: 100}).Generate()
	if d.Unique != 100 || !bytes.Equal(d.Input, d.Expected) {
		t.Errorf("Unique = %d, want 100 with expected == input", d.Unique)
	}
}

func TestGenerateOmitFinalNewline(t *testing.T) {
	d := NewGenerator(GeneratorConfig{NumLines: 3, OmitFinalNewline: true}).Generate()
	if bytes.HasSuffix(d.Input, []byte("\n")) {
		t.Errorf("input should not end in a newline: %q", d.Input)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	d, err := NewGenerator(GeneratorConfig{NumLines: 10, Distinct: 3}).WriteFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, d.Input) {
		t.Error("file content differs from generated input")
	}
}
