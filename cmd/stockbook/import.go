package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/stockbook/internal/config"
	"github.com/JonMunkholm/stockbook/internal/core"
	"github.com/JonMunkholm/stockbook/internal/logging"
	"github.com/JonMunkholm/stockbook/internal/store/postgres"
	"github.com/JonMunkholm/stockbook/internal/tabular"
)

type importOptions struct {
	file      string
	profile   string
	identical string
	divergent string
	operator  string
	dryRun    bool
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a CSV or XLSX file through a profile",
		Long: `Import parses FILE, validates it and classifies rows whose key already
exists. Divergent duplicates are resolved with --divergent and identical
ones with --identical; the import is refused while any stay undecided.
The session view is printed as JSON on stdout.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			opts.file = args[0]
			for flag, v := range map[string]string{"identical": opts.identical, "divergent": opts.divergent} {
				if _, err := core.ParseAction(v); err != nil {
					return withCode(exitUsage, fmt.Errorf("invalid --%s: %w", flag, err))
				}
			}
			if _, ok := core.Get(opts.profile); !ok {
				return withCode(exitUsage, fmt.Errorf("%w: %s", core.ErrUnknownProfile, opts.profile))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.profile, "profile", "p", "", "Import profile key (required)")
	cmd.Flags().StringVar(&opts.identical, "identical", "", "Action for identical duplicates: skip or overwrite")
	cmd.Flags().StringVar(&opts.divergent, "divergent", "", "Action for every divergent duplicate: skip or overwrite")
	cmd.Flags().StringVar(&opts.operator, "operator", "", "Operator recorded in the import history (default: current user)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Classify and print the preview without writing")
	_ = cmd.MarkFlagRequired("profile")

	return cmd
}

func runImport(ctx context.Context, opts importOptions, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return withCode(exitUsage, err)
	}
	logging.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	profile, _ := core.Get(opts.profile)

	f, err := os.Open(opts.file)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := tabular.Parse(opts.file, f, tabular.Options{
		MaxSize: cfg.Import.MaxFileSize,
		Headers: profile.SourceColumns(),
	})
	if err != nil {
		return withCode(exitBlocked, userFacing(err))
	}

	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	db := postgres.New(pool)
	svc := core.NewService(db, db, serviceOptions(cfg.Import))

	operator := opts.operator
	if operator == "" {
		if u, err := user.Current(); err == nil {
			operator = u.Username
		}
	}

	view, err := svc.Start(ctx, core.StartRequest{
		Profile:          profile.Key,
		FileName:         opts.file,
		Operator:         operator,
		Rows:             rows,
		IdenticalDefault: core.Action(opts.identical),
	})
	if err != nil {
		return blocked(out, view, err)
	}

	if opts.divergent != "" && view.Summary.Divergent > 0 {
		if view, err = svc.ApplyToAll(view.ID, core.Action(opts.divergent)); err != nil {
			return blocked(out, view, err)
		}
	}

	if opts.dryRun {
		_ = svc.Discard(view.ID)
		return printJSON(out, view)
	}

	view, err = svc.Commit(ctx, view.ID)
	if err != nil {
		return blocked(out, view, err)
	}
	if err := printJSON(out, view); err != nil {
		return err
	}
	if o := view.Outcome; o != nil && (o.Failed > 0 || o.NotAttempted > 0) {
		return withCode(exitFailure, fmt.Errorf("%d records failed, %d not attempted", o.Failed, o.NotAttempted))
	}
	return nil
}

// blocked prints the session, if any, and reports err with the blocked
// exit code.
func blocked(out io.Writer, view core.SessionView, err error) error {
	if view.ID != "" {
		_ = printJSON(out, view)
	}
	return withCode(exitBlocked, userFacing(err))
}

// userFacing prefixes err with its coded user message.
func userFacing(err error) error {
	return fmt.Errorf("%s\n  detail: %w", core.FormatUserError(err), err)
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// serviceOptions maps import config to a single-commit service. An
// --identical flag still overrides IdenticalDefault per import.
func serviceOptions(c config.ImportConfig) core.Options {
	return core.Options{
		CommitWorkers:    c.CommitWorkers,
		CommitTimeout:    c.CommitTimeout,
		MaxConcurrent:    1,
		MaxWait:          c.MaxWaitTime,
		IdenticalDefault: core.Action(c.IdenticalDefault),
	}
}
