// Command fortree applies source-to-source transformation pipelines to
// Fortran files: rewrite a single file, batch-process many in parallel, or
// maintain a cross-file dependency index.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fortree/fortree/internal/batch"
	"github.com/fortree/fortree/internal/index"
	"github.com/fortree/fortree/internal/pass"
	"github.com/fortree/fortree/internal/pipeline"
	"github.com/fortree/fortree/internal/processor"
)

var version = "0.3.0"

func main() {
	var cmdRoot = &cobra.Command{
		Use:   "fortree",
		Short: "Fortran source-to-source transformation tool",
		Long:  `Parse Fortran sources into mutable trees, apply rewrite pipelines, and write the results back.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				level = slog.LevelDebug
			} else if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
				level = slog.LevelWarn
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}
	cmdRoot.PersistentFlags().Bool("debug", false, "log debugging information")
	cmdRoot.PersistentFlags().Bool("quiet", false, "log warnings and errors only")

	cmdRoot.AddCommand(cmdRewrite())
	cmdRoot.AddCommand(cmdBatch())
	cmdRoot.AddCommand(cmdPasses())
	cmdRoot.AddCommand(cmdDeps())
	cmdRoot.AddCommand(cmdVersion())

	if err := cmdRoot.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadPipeline(specPath string) (*pipeline.Pipeline, error) {
	spec, err := pipeline.LoadSpec(specPath)
	if err != nil {
		return nil, err
	}
	return pipeline.New(pass.DefaultContext(), spec)
}

func cmdRewrite() *cobra.Command {
	var pipelineFile string
	var outputFile string
	var inPlace bool
	var cmd = &cobra.Command{
		Use:          "rewrite <fortran-file>",
		Short:        "apply a pipeline to one file",
		Long:         `Apply a pipeline to one file. The result goes to stdout unless --output or --in-place is given.`,
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipe, err := loadPipeline(pipelineFile)
			if err != nil {
				return err
			}
			job := processor.Job{Input: args[0], Output: args[0], Pipeline: pipe}
			if outputFile != "" {
				job.Output = outputFile
			}
			outcome := processor.Process(job)
			if !outcome.Succeeded() {
				return fmt.Errorf("%s: %s", job.Input, outcome.Failure)
			}
			if inPlace || outputFile != "" {
				return batch.WriteFile(job.Output, outcome.Text)
			}
			_, err = os.Stdout.Write(outcome.Text)
			return err
		},
	}
	cmd.Flags().StringVarP(&pipelineFile, "pipeline", "p", pipelineFile, "pipeline spec file (YAML)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", outputFile, "write result to file")
	cmd.Flags().BoolVar(&inPlace, "in-place", inPlace, "overwrite the input file")
	_ = cmd.MarkFlagRequired("pipeline")
	cmd.MarkFlagsMutuallyExclusive("output", "in-place")
	return cmd
}

func cmdBatch() *cobra.Command {
	var pipelineFile string
	var outDir string
	var jobs int
	var allOrNothing bool
	var partialSuccess bool
	var dryRun bool
	var timeout time.Duration
	var reportFormat string
	var cmd = &cobra.Command{
		Use:          "batch <glob>...",
		Short:        "apply a pipeline to many files in parallel",
		Long:         `Apply a pipeline to every file matching the globs, rewriting in place (or into --out-dir). Failed files are reported and left untouched.`,
		SilenceUsage: true,
		Args:         cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipe, err := loadPipeline(pipelineFile)
			if err != nil {
				return err
			}
			inputs, err := batch.ExpandInputs(args)
			if err != nil {
				return err
			}
			mode := batch.PartialSuccess
			if allOrNothing {
				mode = batch.AllOrNothing
			}
			driver := batch.NewDriver(pipe, batch.Options{
				Concurrency: jobs,
				WriteMode:   mode,
				Timeout:     timeout,
				DryRun:      dryRun,
			})
			var outputFor func(string) string
			if outDir != "" {
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return err
				}
				outputFor = func(in string) string {
					return filepath.Join(outDir, filepath.Base(in))
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rep, runErr := driver.Run(ctx, driver.Jobs(inputs, outputFor))
			if rep != nil {
				var werr error
				if reportFormat == "json" {
					werr = rep.WriteJSON(os.Stdout)
				} else {
					werr = rep.WriteText(os.Stdout)
				}
				if werr != nil {
					return werr
				}
			}
			if runErr != nil {
				return runErr
			}
			// With explicit partial-success semantics only driver-level
			// errors set the exit code; per-file failures are already in
			// the report.
			if n := rep.FailedCount(); n > 0 && !partialSuccess {
				return fmt.Errorf("%d file(s) failed", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&pipelineFile, "pipeline", "p", pipelineFile, "pipeline spec file (YAML)")
	cmd.Flags().StringVar(&outDir, "out-dir", outDir, "write results into this directory instead of in place")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "worker count (default: number of CPUs)")
	cmd.Flags().BoolVar(&allOrNothing, "all-or-nothing", allOrNothing, "write nothing unless every file succeeds")
	cmd.Flags().BoolVar(&partialSuccess, "partial-success", partialSuccess, "exit 0 even when some files fail, as long as the driver itself succeeds")
	cmd.Flags().BoolVar(&dryRun, "dry-run", dryRun, "process and report without writing")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-file processing timeout (0 disables)")
	cmd.Flags().StringVar(&reportFormat, "report", "text", "report format: text or json")
	_ = cmd.MarkFlagRequired("pipeline")
	cmd.MarkFlagsMutuallyExclusive("all-or-nothing", "partial-success")
	return cmd
}

func cmdPasses() *cobra.Command {
	return &cobra.Command{
		Use:          "passes",
		Short:        "list available passes",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := pass.DefaultContext()
			for _, name := range ctx.Names() {
				p, _ := ctx.Lookup(name)
				fmt.Printf("%-22s %s\n", name, p.Kind())
			}
			return nil
		},
	}
}

func cmdDeps() *cobra.Command {
	var dbPath string
	var level int
	var needs, neededBy, calls, calledBy string
	var cmd = &cobra.Command{
		Use:          "deps [--build <glob>...]",
		Short:        "build and query the cross-file dependency index",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ix, err := index.OpenPath(dbPath)
			if err != nil {
				return err
			}
			defer ix.Close()

			if len(args) > 0 {
				inputs, err := batch.ExpandInputs(args)
				if err != nil {
					return err
				}
				if _, err := ix.BuildFiles(inputs); err != nil {
					return err
				}
			}

			var results []string
			switch {
			case needs != "":
				results, err = ix.NeedsFile(needs, level)
			case neededBy != "":
				results, err = ix.NeededByFile(neededBy, level)
			case calls != "":
				results, err = ix.CallsScopes(calls, level)
			case calledBy != "":
				results, err = ix.CalledByScope(calledBy, level)
			default:
				if len(args) == 0 {
					return fmt.Errorf("nothing to do: give globs to index, or a query flag")
				}
				return nil
			}
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Println(r)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", ".fortree.db", "dependency database path")
	cmd.Flags().IntVar(&level, "level", 1, "transitive depth for queries (0 = unlimited)")
	cmd.Flags().StringVar(&needs, "needs", needs, "files this file needs to compile")
	cmd.Flags().StringVar(&neededBy, "needed-by", neededBy, "files that need this file to compile")
	cmd.Flags().StringVar(&calls, "calls", calls, "scopes called by this scope path")
	cmd.Flags().StringVar(&calledBy, "called-by", calledBy, "scopes calling this scope path")
	cmd.MarkFlagsMutuallyExclusive("needs", "needed-by", "calls", "called-by")
	return cmd
}

func cmdVersion() *cobra.Command {
	return &cobra.Command{
		Use:          "version",
		Short:        "print the version",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("fortree version %s\n", version)
			return nil
		},
	}
}
