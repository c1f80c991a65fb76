package generator

import (
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/seitarof/gen-nodewalk/internal/parser"
	"github.com/seitarof/gen-nodewalk/internal/rules"
	"github.com/seitarof/gen-nodewalk/internal/walk"
)

const runModule = "module example.com/nodewalkrun\n\ngo 1.22\n"

// TestGenerate_GeneratedCodeRuns generates traversals into a copy of each
// bindings package and runs the package tests there, which exercise the
// generated Traverse and String methods. The renderings those tests save are
// parsed back and must list the same visits as the generated walk.
func TestGenerate_GeneratedCodeRuns(t *testing.T) {
	if testing.Short() {
		t.Skip("builds and runs a separate module")
	}
	goBin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go tool not found")
	}

	tests := []struct {
		pkg     string
		version rules.Version
	}{
		{pkg: "bindings", version: rules.V13},
		{pkg: "bindings12", version: rules.V12},
	}
	for _, tc := range tests {
		t.Run(tc.pkg, func(t *testing.T) {
			s, err := parser.New().Load("github.com/seitarof/gen-nodewalk/testdata/" + tc.pkg)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			plan := classify(t, s, tc.version)

			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte(runModule), 0o644); err != nil {
				t.Fatal(err)
			}
			pkgDir := filepath.Join(dir, tc.pkg)
			copyDir(t, filepath.Join("..", "..", "testdata", tc.pkg), pkgDir)

			target := testTarget{filename: filepath.Join(pkgDir, "nodewalk_gen.go"), pkg: tc.pkg}
			if err := New(NewGoimportsFormatter(), NewFileWriter()).Generate(target, plan); err != nil {
				t.Fatalf("Generate() error = %v", err)
			}

			traces := filepath.Join(dir, "traces")
			if err := os.MkdirAll(traces, 0o755); err != nil {
				t.Fatal(err)
			}
			cmd := exec.Command(goBin, "test", "-count=1", "-tags", "nodewalk_generated", "./"+tc.pkg)
			cmd.Dir = dir
			cmd.Env = append(os.Environ(), "GOWORK=off", "GOFLAGS=", "GOTOOLCHAIN=local", "NODEWALK_TRACE_DIR="+traces)
			if out, err := cmd.CombinedOutput(); err != nil {
				gen, _ := os.ReadFile(target.filename)
				t.Fatalf("go test of the generated package failed: %v\n%s\ngenerated code:\n%s", err, out, gen)
			}

			compareTraces(t, traces)
		})
	}
}

func compareTraces(t *testing.T, dir string) {
	t.Helper()
	renders, err := filepath.Glob(filepath.Join(dir, "*.render"))
	if err != nil {
		t.Fatal(err)
	}
	if len(renders) == 0 {
		t.Fatal("generated package wrote no traces")
	}
	for _, path := range renders {
		name := strings.TrimSuffix(filepath.Base(path), ".render")
		text, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		raw, err := os.ReadFile(filepath.Join(dir, name+".visits"))
		if err != nil {
			t.Fatal(err)
		}
		var walked []string
		if len(raw) > 0 {
			walked = strings.Split(string(raw), "\n")
		}

		v, err := walk.ParseRendered(string(text))
		if err != nil {
			t.Fatalf("%s: ParseRendered() error = %v\n%s", name, err, text)
		}
		var parsed []string
		for _, visit := range v.Visits() {
			parsed = append(parsed, visit.String())
		}
		if !slices.Equal(walked, parsed) {
			t.Fatalf("%s: visit order mismatch\nwalked:\n%s\nrendered:\n%s\n%s",
				name, strings.Join(walked, "\n"), strings.Join(parsed, "\n"), text)
		}
	}
}

func copyDir(t *testing.T, src, dst string) {
	t.Helper()
	entries, err := os.ReadDir(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(src, e.Name()))
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dst, e.Name()), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}
