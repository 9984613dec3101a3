// Package runner drives a whole run: it discovers the config files, builds
// the schemas that are stale, writes them and associates every config
// file with its schema.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"autoschema/internal/association"
	"autoschema/internal/builder"
	"autoschema/internal/compose"
	"autoschema/internal/config"
	"autoschema/internal/merge"
	"autoschema/internal/schemafile"
	"autoschema/internal/synth"
	"autoschema/internal/target"
)

// FileBuilder builds the schema of a single config file.
type FileBuilder interface {
	BuildFile(configFile string) builder.Result
	PrettyPath(configFile string) string
}

// Runner processes config files with a fixed set of options.
type Runner struct {
	opts    config.Options
	builder FileBuilder
	store   *schemafile.Store
	assoc   *association.Associator
	log     zerolog.Logger

	// Config files whose names collide share a schema file; builds for
	// one schema path never overlap.
	locks sync.Map
}

// New creates a Runner around b.
func New(opts config.Options, b FileBuilder, log zerolog.Logger) *Runner {
	return &Runner{
		opts:    opts,
		builder: b,
		store:   schemafile.NewStore(opts.SchemasDir),
		assoc: &association.Associator{
			RepoRoot: opts.RepoRoot,
			Mode:     opts.AssociationMode(),
			Log:      log,
		},
		log: log,
	}
}

// Setup wires the target registry, synthesizer, composer and builder for
// opts and returns a Runner using them.
func Setup(opts config.Options, log zerolog.Logger) (*Runner, error) {
	reg := target.NewRegistry()
	for _, manifest := range opts.Targets {
		if err := target.LoadManifestFile(reg, manifest); err != nil {
			return nil, err
		}
		log.Debug().Str("manifest", manifest).Int("targets", reg.Len()).Msg("loaded targets manifest")
	}
	s := synth.New(reg, synth.WithLogger(log))
	c := compose.New(opts.ConfigsDir)
	b := builder.New(s, c, opts.ConfigsDir, opts.RepoRoot, builder.WithLogger(log))
	return New(opts, b, log), nil
}

// Store returns the schema file store.
func (r *Runner) Store() *schemafile.Store { return r.store }

// Discover lists the YAML files under the configs dir, sorted. Anything
// inside a .venv directory is ignored unless the configs dir itself is.
func (r *Runner) Discover() ([]string, error) {
	return Discover(r.opts.ConfigsDir)
}

// Discover lists the YAML files under dir, sorted.
func Discover(dir string) ([]string, error) {
	insideVenv := false
	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".venv" {
			insideVenv = true
		}
	}
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == ".venv" && !insideVenv {
				return filepath.SkipDir
			}
			return nil
		}
		if IsConfigFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// IsConfigFile reports whether path names a YAML config file.
func IsConfigFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Run processes every config file under the configs dir.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	files, err := r.Discover()
	if err != nil {
		return nil, fmt.Errorf("discover config files: %w", err)
	}
	r.log.Info().Int("files", len(files)).Str("dir", r.opts.ConfigsDir).Msg("found config files")
	return r.Process(ctx, files, r.opts.Regen)
}

// Process builds the stale schemas among files and associates all of them
// with their schema files. force rebuilds fresh schemas too. The returned
// report covers the files processed before any fatal error.
func (r *Runner) Process(ctx context.Context, files []string, force bool) (*Report, error) {
	start := time.Now()
	report := &Report{Files: make([]FileReport, len(files))}

	if err := r.store.EnsureIgnored(r.opts.RepoRoot); err != nil {
		return report, fmt.Errorf("update .gitignore: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, r.opts.Jobs))
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fr, err := r.processFile(file, force)
			report.Files[i] = fr
			return err
		})
	}
	err := g.Wait()
	report.Elapsed = time.Since(start)
	if err != nil {
		report.Files = done(report.Files)
		return report, err
	}

	pairs := make([]association.Pair, 0, len(files))
	for _, f := range report.Files {
		pairs = append(pairs, association.Pair{ConfigFile: f.Config, SchemaFile: f.Schema})
	}
	mode, err := r.assoc.Associate(pairs)
	report.Association = mode
	report.Elapsed = time.Since(start)
	if err != nil {
		return report, fmt.Errorf("associate schemas: %w", err)
	}
	return report, nil
}

// done drops the entries of files that were never processed.
func done(files []FileReport) []FileReport {
	out := files[:0]
	for _, f := range files {
		if f.Status != "" {
			out = append(out, f)
		}
	}
	return out
}

func (r *Runner) processFile(file string, force bool) (FileReport, error) {
	pretty := r.builder.PrettyPath(file)
	fr := FileReport{File: pretty, Config: file, Schema: r.store.Path(file)}
	fail := func(err error) (FileReport, error) {
		fr.Status = StatusFailed
		fr.Error = err.Error()
		return fr, err
	}

	mu, _ := r.locks.LoadOrStore(fr.Schema, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	regen, reason := r.store.NeedsRegen(file, r.opts.Grace, force)
	if !regen {
		r.log.Debug().Str("file", pretty).Msg("schema is up to date")
		fr.Status = StatusSkipped
		return fr, nil
	}
	fr.Reason = string(reason)
	r.log.Info().Str("file", pretty).Str("reason", fr.Reason).Msg("generating schema")

	res := r.builder.BuildFile(file)
	if res.Err != nil {
		var conflict *merge.ConflictError
		if errors.As(res.Err, &conflict) || r.opts.StopOnError {
			return fail(fmt.Errorf("%s: %w", pretty, res.Err))
		}
		r.log.Warn().Str("file", pretty).Err(res.Err).Msg("unable to generate a complete schema")
		fr.Error = res.Err.Error()
	}

	if _, err := r.store.Write(file, res.Schema, res.Partial()); err != nil {
		return fail(fmt.Errorf("write schema of %s: %w", pretty, err))
	}
	fr.Status = StatusWritten
	if res.Partial() {
		fr.Status = StatusPartial
	}
	r.log.Debug().Str("file", pretty).Str("schema", fr.Schema).Msg("wrote schema")
	return fr, nil
}
