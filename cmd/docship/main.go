package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/docship/internal/config"
	"git.home.luguber.info/inful/docship/internal/daemon"
	"git.home.luguber.info/inful/docship/internal/gitrepo"
	"git.home.luguber.info/inful/docship/internal/pipeline"
	"git.home.luguber.info/inful/docship/internal/runstore"
	"git.home.luguber.info/inful/docship/internal/trigger"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"docship.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Run struct {
		Ref     string   `short:"r" help:"Full ref name, e.g. refs/tags/concrete-core-1.4.0" required:""`
		Changed []string `help:"Changed paths; defaults to the diff between --before and the ref head"`
		Before  string   `help:"Commit hash to diff against for the changed path set"`
		DryRun  bool     `help:"Build and package but never publish"`
	} `cmd:"" help:"Execute one publish pipeline run for a ref"`

	Eval struct {
		Ref     string   `short:"r" help:"Full ref name to evaluate" required:""`
		Changed []string `help:"Changed paths for branch evaluation"`
	} `cmd:"" help:"Show the trigger decision for a ref without running anything"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	Daemon struct{} `cmd:"" help:"Start the webhook-driven publishing daemon"`

	History struct {
		Limit int `short:"n" help:"Number of runs to show" default:"20"`
	} `cmd:"" help:"Show recent pipeline runs"`
}

func main() {
	kctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	switch kctx.Command() {
	case "run":
		if err := runOnce(); err != nil {
			slog.Error("Run failed", "error", err)
			os.Exit(1)
		}
	case "eval":
		if err := runEval(); err != nil {
			slog.Error("Eval failed", "error", err)
			os.Exit(1)
		}
	case "init":
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration written to %s\n", CLI.Config)
	case "daemon":
		if err := runDaemon(); err != nil {
			slog.Error("Daemon failed", "error", err)
			os.Exit(1)
		}
	case "history":
		if err := runHistory(); err != nil {
			slog.Error("History failed", "error", err)
			os.Exit(1)
		}
	}
}

func runOnce() error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	pipe, err := pipeline.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	event := trigger.Event{Ref: CLI.Run.Ref, ChangedPaths: CLI.Run.Changed}
	if len(event.ChangedPaths) == 0 && CLI.Run.Before != "" {
		paths, err := changedPathsForRef(ctx, cfg, CLI.Run.Ref, CLI.Run.Before)
		if err != nil {
			return err
		}
		event.ChangedPaths = paths
	}

	report, err := pipe.Run(ctx, event, !CLI.Run.DryRun)
	printReport(report)
	return err
}

// changedPathsForRef checks the ref out and diffs its head against the
// before commit, matching what a webhook push would have carried.
func changedPathsForRef(ctx context.Context, cfg *config.Config, ref, before string) ([]string, error) {
	client := gitrepo.NewClient(cfg.Build.WorkDir)
	repoPath, err := client.Checkout(ctx, cfg.Project.RepoURL, ref, "eval-checkout")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(repoPath)

	head, err := client.Head(repoPath)
	if err != nil {
		return nil, err
	}
	return gitrepo.ChangedPaths(repoPath, before, head)
}

func runEval() error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	rules := trigger.Rules{
		DocsDir:        cfg.Project.DocsDir,
		DefaultBranch:  cfg.Project.DefaultBranch,
		TagPrefix:      cfg.Project.TagPrefix,
		DefaultVersion: cfg.Project.DefaultVersion,
	}
	decision := trigger.Evaluate(rules, trigger.Event{
		Ref:          CLI.Eval.Ref,
		ChangedPaths: CLI.Eval.Changed,
	})

	return json.NewEncoder(os.Stdout).Encode(decision)
}

func runDaemon() error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return d.Start(ctx, CLI.Config)
}

func runHistory() error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	store, err := runstore.NewSQLiteStore(cfg.Daemon.RunStorePath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRecent(context.Background(), CLI.History.Limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tREF\tVERSION\tSTATUS\tOBJECTS\tSTARTED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			run.ID, run.Ref, run.Version, run.Status,
			run.ObjectsWritten, run.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func printReport(report *pipeline.Report) {
	if report == nil {
		return
	}
	slog.Info("Run report",
		"run_id", report.RunID,
		"status", string(report.Status),
		"version", report.Version,
		"objects", report.ObjectsWritten,
		"duration", report.Duration().String())
	for _, issue := range report.Issues {
		slog.Warn("Run issue",
			"stage", string(issue.Stage),
			"kind", string(issue.Kind),
			"message", issue.Message)
	}
}
