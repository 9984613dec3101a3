// Package config resolves the options of a run from defaults, the
// repository's .autoschema.yaml, AUTOSCHEMA_* environment variables and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"autoschema/internal/association"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "AUTOSCHEMA"

// FileName is the optional per-repository options file.
const FileName = ".autoschema.yaml"

// DefaultGrace is the window within which a schema older than its config
// by less than the window still counts as fresh.
const DefaultGrace = 10 * time.Second

// ErrNoConfigsDir is returned when no configs directory was given and none
// could be discovered under the repository root.
var ErrNoConfigsDir = errors.New("no configs directory found")

// Options holds every option of a run.
type Options struct {
	RepoRoot    string        `mapstructure:"repo_root"`
	ConfigsDir  string        `mapstructure:"configs_dir"`
	SchemasDir  string        `mapstructure:"schemas_dir"`
	Targets     []string      `mapstructure:"targets"`
	Mode        string        `mapstructure:"mode"`
	Regen       bool          `mapstructure:"regen_schemas"`
	StopOnError bool          `mapstructure:"stop_on_error"`
	Watch       bool          `mapstructure:"watch"`
	Jobs        int           `mapstructure:"jobs"`
	Grace       time.Duration `mapstructure:"grace"`
	Verbosity   int           `mapstructure:"verbose"`
	Quiet       bool          `mapstructure:"quiet"`
	ReportJSON  bool          `mapstructure:"report_json"`

	// ConfigFileUsed is the options file that was read, if any.
	ConfigFileUsed string `mapstructure:"-"`
}

// AssociationMode returns the parsed association mode.
func (o Options) AssociationMode() association.Mode {
	m, err := association.ParseMode(o.Mode)
	if err != nil {
		return association.ModeAuto
	}
	return m
}

// flagKeys maps command-line flag names to option keys.
var flagKeys = map[string]string{
	"configs-dir":   "configs_dir",
	"schemas-dir":   "schemas_dir",
	"targets":       "targets",
	"regen-schemas": "regen_schemas",
	"stop-on-error": "stop_on_error",
	"watch":         "watch",
	"jobs":          "jobs",
	"grace":         "grace",
	"verbose":       "verbose",
	"quiet":         "quiet",
	"report-json":   "report_json",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("configs_dir", "")
	v.SetDefault("schemas_dir", "")
	v.SetDefault("targets", []string{})
	v.SetDefault("mode", string(association.ModeAuto))
	v.SetDefault("regen_schemas", false)
	v.SetDefault("stop_on_error", false)
	v.SetDefault("watch", false)
	v.SetDefault("jobs", 1)
	v.SetDefault("grace", DefaultGrace)
	v.SetDefault("verbose", 0)
	v.SetDefault("quiet", false)
	v.SetDefault("report_json", false)
}

// Load resolves the options for the repository at repoRoot. flags may be
// nil; otherwise flags that were set on the command line win over every
// other source.
func Load(repoRoot string, flags *pflag.FlagSet) (Options, error) {
	var opts Options

	root, err := filepath.Abs(repoRoot)
	if err != nil {
		return opts, fmt.Errorf("resolve repo root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return opts, fmt.Errorf("repo root: %w", err)
	}
	if !info.IsDir() {
		return opts, fmt.Errorf("repo root %s is not a directory", root)
	}

	v := viper.New()
	setDefaults(v)

	cfgFile := filepath.Join(root, FileName)
	if _, err := os.Stat(cfgFile); err == nil {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return opts, fmt.Errorf("read %s: %w", cfgFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return opts, fmt.Errorf("bind flag --%s: %w", name, err)
				}
			}
		}
		if mode, ok := modeFromFlags(flags); ok {
			v.Set("mode", string(mode))
		}
	}

	if err := v.Unmarshal(&opts); err != nil {
		return opts, fmt.Errorf("decode options: %w", err)
	}
	opts.RepoRoot = root
	opts.ConfigFileUsed = v.ConfigFileUsed()

	if err := opts.resolve(); err != nil {
		return opts, err
	}
	return opts, nil
}

// modeFromFlags maps the --add-headers / --no-add-headers pair onto a mode.
func modeFromFlags(flags *pflag.FlagSet) (association.Mode, bool) {
	var addHeaders *bool
	if f := flags.Lookup("add-headers"); f != nil && f.Changed {
		on, _ := flags.GetBool("add-headers")
		addHeaders = &on
	}
	if f := flags.Lookup("no-add-headers"); f != nil && f.Changed {
		if off, _ := flags.GetBool("no-add-headers"); off {
			on := false
			addHeaders = &on
		}
	}
	if addHeaders == nil {
		return "", false
	}
	return association.ModeFromHeaders(addHeaders), true
}

// resolve fills the derived defaults and validates the result.
func (o *Options) resolve() error {
	if _, err := association.ParseMode(o.Mode); err != nil {
		return err
	}

	switch {
	case o.Jobs == 0:
		o.Jobs = runtime.NumCPU()
	case o.Jobs < 0:
		return fmt.Errorf("jobs must not be negative, got %d", o.Jobs)
	}
	if o.Grace < 0 {
		return fmt.Errorf("grace must not be negative, got %s", o.Grace)
	}

	if o.ConfigsDir == "" {
		dir, err := FindConfigsDir(o.RepoRoot)
		if err != nil {
			return err
		}
		o.ConfigsDir = dir
	} else {
		o.ConfigsDir = o.abs(o.ConfigsDir)
		info, err := os.Stat(o.ConfigsDir)
		if err != nil {
			return fmt.Errorf("configs dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("configs dir %s is not a directory", o.ConfigsDir)
		}
	}

	if o.SchemasDir == "" {
		o.SchemasDir = filepath.Join(o.RepoRoot, ".schemas")
	} else {
		o.SchemasDir = o.abs(o.SchemasDir)
	}

	if len(o.Targets) == 0 {
		def := filepath.Join(o.RepoRoot, ".autoschema", "targets.yaml")
		if _, err := os.Stat(def); err == nil {
			o.Targets = []string{def}
		}
	}
	for i, t := range o.Targets {
		o.Targets[i] = o.abs(t)
	}
	return nil
}

func (o *Options) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(o.RepoRoot, p)
}

// FindConfigsDir returns the shallowest directory under repoRoot whose name
// starts with "conf", ignoring anything inside a .venv directory. Ties at
// the same depth go to the lexically smallest path.
func FindConfigsDir(repoRoot string) (string, error) {
	var found []string
	err := filepath.WalkDir(repoRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == repoRoot {
				return err
			}
			return nil
		}
		if !d.IsDir() || path == repoRoot {
			return nil
		}
		name := d.Name()
		if name == ".venv" || name == ".git" {
			return filepath.SkipDir
		}
		if strings.HasPrefix(name, "conf") {
			found = append(found, path)
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(found) == 0 {
		return "", fmt.Errorf("%w under %s", ErrNoConfigsDir, repoRoot)
	}
	sort.SliceStable(found, func(i, j int) bool {
		di, dj := depth(found[i]), depth(found[j])
		if di != dj {
			return di < dj
		}
		return found[i] < found[j]
	})
	return found[0], nil
}

func depth(p string) int {
	return strings.Count(filepath.ToSlash(p), "/")
}
