// Package cli defines the autoschema command line.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"autoschema/internal/config"
	"autoschema/internal/logging"
	"autoschema/internal/runner"
	"autoschema/internal/watch"
)

// NewRootCommand builds the autoschema command. Reports go to stdout and
// logs to stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autoschema [repo-root]",
		Short: "Generate JSON schemas for hierarchical YAML config files",
		Long: `autoschema writes a JSON schema for every YAML config file under the
configs directory of a repository and associates each config file with its
schema, either through the editor settings of the repository or through a
yaml-language-server directive at the top of the file.

Options are read from <repo-root>/.autoschema.yaml, then from AUTOSCHEMA_*
environment variables, then from the flags below.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			return Execute(cmd.Context(), root, cmd.Flags(), stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.String("configs-dir", "", "directory holding the config files (default: first conf* directory under the repo root)")
	f.String("schemas-dir", "", "directory the schemas are written to (default: <repo-root>/.schemas)")
	f.StringArray("targets", nil, "targets manifest describing the _target_ references (repeatable)")
	f.Bool("regen-schemas", false, "regenerate schemas even when they are up to date")
	f.Bool("stop-on-error", false, "stop at the first config file whose schema cannot be generated")
	f.Bool("watch", false, "keep running and rebuild schemas as config files change")
	f.Bool("add-headers", false, "associate schemas through a directive at the top of each config file")
	f.Bool("no-add-headers", false, "associate schemas through the editor settings only")
	f.Int("jobs", 1, "number of config files processed in parallel (0: one per CPU)")
	f.Duration("grace", config.DefaultGrace, "a config modified within this window after its schema counts as unchanged")
	f.CountP("verbose", "v", "increase log verbosity (-v warn, -vv info, -vvv debug)")
	f.BoolP("quiet", "q", false, "disable logging and the summary")
	f.Bool("report-json", false, "print the run report as JSON")
	cmd.MarkFlagsMutuallyExclusive("add-headers", "no-add-headers")
	cmd.MarkFlagsMutuallyExclusive("quiet", "verbose")

	return cmd
}

// Execute runs autoschema against the repository at root.
func Execute(ctx context.Context, root string, flags *pflag.FlagSet, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	opts, err := config.Load(root, flags)
	if err != nil {
		return err
	}

	log := logging.New(stderr, opts.Verbosity, opts.Quiet)
	log.Debug().
		Str("repo_root", opts.RepoRoot).
		Str("configs_dir", opts.ConfigsDir).
		Str("schemas_dir", opts.SchemasDir).
		Strs("targets", opts.Targets).
		Str("mode", opts.Mode).
		Bool("regen", opts.Regen).
		Bool("stop_on_error", opts.StopOnError).
		Bool("watch", opts.Watch).
		Int("jobs", opts.Jobs).
		Str("options_file", opts.ConfigFileUsed).
		Msg("options")

	r, err := runner.Setup(opts, log)
	if err != nil {
		return err
	}

	report, err := r.Run(ctx)
	if err != nil {
		return err
	}
	if err := printReport(stdout, report, opts); err != nil {
		return err
	}
	log.Info().Msg("done updating the schemas of the config files")

	if !opts.Watch {
		return nil
	}
	w := watch.New(opts.ConfigsDir, r,
		watch.WithLogger(log),
		watch.WithStopOnError(opts.StopOnError),
	)
	return w.Run(ctx)
}

func printReport(w io.Writer, report *runner.Report, opts config.Options) error {
	switch {
	case opts.ReportJSON:
		out, err := report.FormatJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, out)
		return err
	case opts.Quiet:
		return nil
	default:
		_, err := io.WriteString(w, report.Format())
		return err
	}
}
