package generator

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/tools/imports"

	"github.com/seitarof/gen-nodewalk/internal/classifier"
)

// Generator emits traversal code for a classified plan.
type Generator interface {
	Generate(target Target, plan *classifier.Plan) error
}

// Target is the minimum config contract required by generator.
type Target interface {
	OutputFilename() string
	PackageName() string
}

// Formatter formats generated Go code and organizes imports.
type Formatter interface {
	Format(filename string, src []byte) ([]byte, error)
}

// FileWriter writes generated code to disk.
type FileWriter interface {
	Write(filename string, data []byte) error
}

type generatorImpl struct {
	formatter Formatter
	writer    FileWriter
}

type goimportsFormatter struct{}

type fileWriter struct{}

// New creates a code generator.
func New(f Formatter, w FileWriter) Generator {
	return &generatorImpl{formatter: f, writer: w}
}

// NewGoimportsFormatter creates a formatter backed by goimports.
func NewGoimportsFormatter() Formatter {
	return &goimportsFormatter{}
}

// NewFileWriter creates a file writer that creates missing directories.
func NewFileWriter() FileWriter {
	return &fileWriter{}
}

func (g *generatorImpl) Generate(target Target, plan *classifier.Plan) error {
	if plan == nil || len(plan.Programs) == 0 {
		return fmt.Errorf("no traversal programs")
	}
	if target.PackageName() == "" {
		return fmt.Errorf("no package name for %s", target.OutputFilename())
	}

	var buf bytes.Buffer
	if err := newEmitter(plan).file(target.PackageName()).Render(&buf); err != nil {
		return fmt.Errorf("render: %w", err)
	}

	filename := target.OutputFilename()
	formatted, err := g.formatter.Format(filename, buf.Bytes())
	if err != nil {
		debugPath := filename + ".error"
		if werr := g.writer.Write(debugPath, buf.Bytes()); werr != nil {
			return fmt.Errorf("format: %w (keeping unformatted source failed: %v)", err, werr)
		}
		return fmt.Errorf("format: %w (unformatted written to %s)", err, debugPath)
	}
	if err := g.writer.Write(filename, formatted); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (f *goimportsFormatter) Format(filename string, src []byte) ([]byte, error) {
	return imports.Process(filename, src, nil)
}

func (w *fileWriter) Write(filename string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}
