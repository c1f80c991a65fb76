package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/seitarof/gen-nodewalk/internal/rules"
)

const maxWalkDepth = 25

var configNames = []string{"gen-nodewalk.yaml", "gen-nodewalk.yml"}

// Config is one generation run over one or more targets.
type Config struct {
	// Rules replaces the built-in rule tables when set.
	Rules   string    `mapstructure:"rules"`
	Workers int       `mapstructure:"workers"`
	Targets []*Target `mapstructure:"targets"`

	// Sample switches the run to explain mode over the single target.
	Sample string `mapstructure:"-"`
}

// Target is one schema version to generate for. Exactly one of Schema and
// Pkg names the input.
type Target struct {
	Version string `mapstructure:"version"`
	Schema  string `mapstructure:"schema"`
	Pkg     string `mapstructure:"pkg"`
	Output  string `mapstructure:"output"`
	Package string `mapstructure:"package"`
	Plan    string `mapstructure:"plan"`

	version rules.Version
}

// OutputFilename returns destination file path for generator layer.
func (t *Target) OutputFilename() string {
	return t.Output
}

// PackageName returns the package clause of the generated file. It defaults
// to the name of the output directory.
func (t *Target) PackageName() string {
	if t.Package != "" {
		return t.Package
	}
	if t.Output == "" {
		return ""
	}
	abs, err := filepath.Abs(t.Output)
	if err != nil {
		return ""
	}
	return strings.ReplaceAll(filepath.Base(filepath.Dir(abs)), "-", "_")
}

// SchemaVersion returns the parsed version. It is valid after validate.
func (t *Target) SchemaVersion() rules.Version {
	return t.version
}

func (t *Target) String() string {
	input := t.Schema
	if input == "" {
		input = t.Pkg
	}
	return t.Version + " (" + input + ")"
}

func (t *Target) validate(explain bool) error {
	v, err := rules.ParseVersion(t.Version)
	if err != nil {
		return err
	}
	t.version = v

	switch {
	case t.Schema == "" && t.Pkg == "":
		return fmt.Errorf("target %s: one of schema or pkg is required", t.Version)
	case t.Schema != "" && t.Pkg != "":
		return fmt.Errorf("target %s: schema and pkg are mutually exclusive", t.Version)
	case !explain && t.Output == "" && t.Plan == "":
		return fmt.Errorf("target %s: nothing to write, set output or plan", t.Version)
	case t.Output != "" && t.PackageName() == "":
		return fmt.Errorf("target %s: cannot derive a package name for %s", t.Version, t.Output)
	}
	return nil
}

// Validate checks every target and the worker count.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("no targets: pass --pg-version with --schema or --pkg, or list targets in %s", configNames[0])
	}
	if c.Sample != "" && len(c.Targets) != 1 {
		return fmt.Errorf("--sample needs exactly one target, got %d", len(c.Targets))
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	seen := map[string]bool{}
	for _, t := range c.Targets {
		if err := t.validate(c.Sample != ""); err != nil {
			return err
		}
		if t.Output == "" {
			continue
		}
		if seen[t.Output] {
			return fmt.Errorf("output %s is written by more than one target", t.Output)
		}
		seen[t.Output] = true
	}
	return nil
}

// LoadConfig discovers and loads configuration with proper precedence:
// env > config file > defaults. Flags are merged afterwards by BuildConfig.
//
// Returns the loaded config, the path to the config file (empty if none found),
// and any error encountered.
func LoadConfig(explicitConfigPath string) (*Config, string, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("NODEWALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath, err := findConfigFile(explicitConfigPath)
	if err != nil {
		return nil, "", err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, configPath, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, configPath, fmt.Errorf("unmarshaling config: %w", err)
	}
	if configPath != "" {
		resolvePaths(&cfg, filepath.Dir(configPath))
	}

	return &cfg, configPath, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rules", "")
	v.SetDefault("workers", 0)
}

// resolvePaths makes relative file paths in the config relative to the
// config file. Package paths are left alone.
func resolvePaths(cfg *Config, dir string) {
	rel := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	cfg.Rules = rel(cfg.Rules)
	for _, t := range cfg.Targets {
		t.Schema = rel(t.Schema)
		t.Output = rel(t.Output)
		t.Plan = rel(t.Plan)
	}
}

// findConfigFile finds the config file to use.
// If explicitPath is provided, it validates the file exists.
// Otherwise, it walks up from cwd looking for gen-nodewalk.yaml or
// gen-nodewalk.yml, stopping at a .git directory or after maxWalkDepth levels.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}

	dir := cwd
	for i := 0; i < maxWalkDepth; i++ {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// BuildConfig merges parsed flags over the config file. A target given on
// the command line replaces the file's targets; --rules and --workers
// override the file's values.
func BuildConfig(opts *Options) (*Config, error) {
	var cfg *Config
	if opts.hasTarget() && opts.ConfigFile == "" {
		cfg = &Config{}
	} else {
		loaded, _, err := LoadConfig(opts.ConfigFile)
		if err != nil {
			return nil, ConfigError("load config", err)
		}
		cfg = loaded
	}

	if opts.hasTarget() {
		t := opts.Target
		cfg.Targets = []*Target{&t}
	}
	if opts.Rules != "" {
		cfg.Rules = opts.Rules
	}
	if opts.Workers != 0 {
		cfg.Workers = opts.Workers
	}
	cfg.Sample = opts.Sample

	if err := cfg.Validate(); err != nil {
		return nil, ConfigError("invalid config", err)
	}
	return cfg, nil
}
