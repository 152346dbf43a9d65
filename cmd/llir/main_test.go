package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nandor-llir/llir/pkg/bitcode"
	"github.com/nandor-llir/llir/pkg/ir"
	"github.com/nandor-llir/llir/pkg/types"
)

func TestVersion(t *testing.T) {
	if version == "" {
		t.Error("version should not be empty")
	}
}

func TestNormalizeFlags(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "single-dash dtags",
			input:    []string{"-dtags", "test.llir"},
			expected: []string{"--dtags", "test.llir"},
		},
		{
			name:     "double-dash dtags unchanged",
			input:    []string{"--dtags", "test.llir"},
			expected: []string{"--dtags", "test.llir"},
		},
		{
			name:     "single-dash dprog",
			input:    []string{"-dprog", "test.llir"},
			expected: []string{"--dprog", "test.llir"},
		},
		{
			name:     "mixed flags",
			input:    []string{"test.llir", "-dprog", "-dtags"},
			expected: []string{"test.llir", "--dprog", "--dtags"},
		},
		{
			name:     "no flags",
			input:    []string{"test.llir"},
			expected: []string{"test.llir"},
		},
		{
			name:     "other flags unchanged",
			input:    []string{"-o", "output.llir", "test.llir"},
			expected: []string{"-o", "output.llir", "test.llir"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := normalizeFlags(tc.input)
			if len(result) != len(tc.expected) {
				t.Fatalf("normalizeFlags(%v) = %v, want %v", tc.input, result, tc.expected)
			}
			for i := range result {
				if result[i] != tc.expected[i] {
					t.Errorf("normalizeFlags(%v) = %v, want %v", tc.input, result, tc.expected)
				}
			}
		})
	}
}

// writeTestObject builds a tiny one-function program and encodes it
// to a file under t.TempDir, returning the path.
func writeTestObject(t *testing.T, name string) string {
	t.Helper()
	prog := ir.NewProgram("t")
	fn := ir.NewFunc(name, types.GlobalDefault)
	b := ir.NewBlock("entry", types.Local)
	b.AddInst(ir.NewRet(), nil)
	fn.AddBlock(b, nil)
	if err := prog.AddFunc(fn, nil); err != nil {
		t.Fatalf("AddFunc() error = %v", err)
	}

	encoded, err := bitcode.Write(prog)
	if err != nil {
		t.Fatalf("bitcode.Write() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), name+".llir")
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestDumpPrintsProgram(t *testing.T) {
	path := writeTestObject(t, "main")

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"dump", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("dump failed: %v, stderr=%q", err, errOut.String())
	}
	if !strings.Contains(out.String(), "main") {
		t.Errorf("dump output = %q, want it to mention func %q", out.String(), "main")
	}
}

func TestDumpTagsFlagAddsLatticeAnnotations(t *testing.T) {
	path := writeTestObject(t, "main")

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"dump", "--dtags", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("dump --dtags failed: %v, stderr=%q", err, errOut.String())
	}
	if !strings.Contains(out.String(), "tags:") {
		t.Errorf("dump --dtags output = %q, want it to contain a tags section", out.String())
	}
}

func TestDumpFileNotFound(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"dump", "nonexistent.llir"})
	if err := cmd.Execute(); err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

func TestVerifyAcceptsWellFormedProgram(t *testing.T) {
	path := writeTestObject(t, "main")

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"verify", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("verify failed: %v, stderr=%q", err, errOut.String())
	}
	if !strings.Contains(out.String(), "ok") {
		t.Errorf("verify output = %q, want it to report ok", out.String())
	}
}

func TestLinkProducesEntryReachableOutput(t *testing.T) {
	prog := ir.NewProgram("t")
	fn := ir.NewFunc("_start", types.GlobalDefault)
	b := ir.NewBlock("entry", types.Local)
	b.AddInst(ir.NewRet(), nil)
	fn.AddBlock(b, nil)
	if err := prog.AddFunc(fn, nil); err != nil {
		t.Fatalf("AddFunc() error = %v", err)
	}
	encoded, err := bitcode.Write(prog)
	if err != nil {
		t.Fatalf("bitcode.Write() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "a.llir")
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	outPath := filepath.Join(t.TempDir(), "out.llir")
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"link", path, "-o", outPath})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("link failed: %v, stderr=%q", err, errOut.String())
	}

	linked, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("failed to read linked output: %v", err)
	}
	if len(linked) == 0 {
		t.Error("linked output is empty")
	}
}

func TestLinkMissingEntryFails(t *testing.T) {
	path := writeTestObject(t, "not_the_entry")

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"link", path})
	if err := cmd.Execute(); err == nil {
		t.Error("expected an error for a missing entry symbol, got nil")
	}
}
