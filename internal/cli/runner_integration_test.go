package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/seitarof/gen-nodewalk/internal/generator"
	"github.com/seitarof/gen-nodewalk/internal/matcher"
	"github.com/seitarof/gen-nodewalk/internal/parser"
)

const bindingsPkg = "github.com/seitarof/gen-nodewalk/testdata/bindings"

func newRunner() Runner {
	return NewRunner(
		parser.New(),
		matcher.New(),
		generator.New(generator.NewGoimportsFormatter(), generator.NewFileWriter()),
		generator.NewFileWriter(),
	)
}

func TestRunner_Run_GeneratesFromBindingsPackage(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "pgnodes", "nodewalk_gen.go")
	planPath := filepath.Join(dir, "plan.json")

	opts, err := ParseArgs([]string{
		"--pkg", bindingsPkg,
		"--pg-version", "13",
		"--output", out,
		"--plan", planPath,
	})
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	cfg, err := BuildConfig(opts)
	if err != nil {
		t.Fatalf("BuildConfig() error = %v", err)
	}
	if err := newRunner().Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	content, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	got := string(content)
	checks := []string{
		"package pgnodes",
		"func (n *Node) Traverse(fn WalkFunc) {",
		"func (n *Agg) Traverse(fn WalkFunc) {",
		"func (n *List) String() string {",
	}
	for _, check := range checks {
		if !strings.Contains(got, check) {
			t.Fatalf("generated code does not contain %q\n%s", check, got)
		}
	}

	raw, err := os.ReadFile(planPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var manifest struct {
		Version  string            `json:"version"`
		Programs []json.RawMessage `json:"programs"`
	}
	if err := json.Unmarshal(raw, &manifest); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if manifest.Version != "pg13" || len(manifest.Programs) == 0 {
		t.Fatalf("unexpected manifest: version %s, %d programs", manifest.Version, len(manifest.Programs))
	}
}

func TestRunner_Run_ConfigFileTargets(t *testing.T) {
	dir := t.TempDir()
	schemas, err := filepath.Abs(filepath.Join("..", "..", "testdata", "schemas"))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "gen-nodewalk.yaml")
	targets := []struct{ version, fixture string }{
		{"12", "pg12"},
		{"13", "pg13"},
		{"14", "pg13"},
	}
	body := "targets:\n"
	for _, tg := range targets {
		body += "  - version: " + tg.version + "\n"
		body += "    schema: " + filepath.Join(schemas, tg.fixture+".yaml") + "\n"
		body += "    output: pg" + tg.version + "/nodes_gen.go\n"
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	opts, err := ParseArgs([]string{"--config", path, "--workers", "2"})
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	cfg, err := BuildConfig(opts)
	if err != nil {
		t.Fatalf("BuildConfig() error = %v", err)
	}
	if err := newRunner().Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, tg := range targets {
		v := tg.version
		content, err := os.ReadFile(filepath.Join(dir, "pg"+v, "nodes_gen.go"))
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		got := string(content)
		if !strings.Contains(got, "package pg"+v) || !strings.Contains(got, "const NodewalkSchemaVersion = "+v) {
			t.Fatalf("pg%s output has the wrong package or version\n%s", v, got)
		}
	}
}

func TestRunner_Run_ParallelPackageTargets(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{Workers: 4}
	for i := range 4 {
		cfg.Targets = append(cfg.Targets, &Target{
			Version: "13",
			Pkg:     bindingsPkg,
			Output:  filepath.Join(dir, fmt.Sprintf("pg%d", i), "nodewalk_gen.go"),
		})
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if err := newRunner().Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for i := range 4 {
		content, err := os.ReadFile(cfg.Targets[i].Output)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if want := fmt.Sprintf("package pg%d", i); !strings.Contains(string(content), want) {
			t.Fatalf("target %d does not contain %q", i, want)
		}
	}
}
