// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/poiesic/docflow"
	"github.com/poiesic/docflow/config"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/ingestion"
	"github.com/poiesic/docflow/queue"
	"github.com/poiesic/docflow/reembed"
	"github.com/poiesic/docflow/worker"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// cliState carries what the Before hook loaded to the command actions.
type cliState struct {
	cfg        *config.Config
	closeLog   func() error
	engineOpts []docflow.EngineOption
}

// newApp builds the CLI. engineOpts are appended to the options of every
// engine a command opens.
func newApp(engineOpts ...docflow.EngineOption) *cli.App {
	state := &cliState{engineOpts: engineOpts}
	app := &cli.App{
		Name:      "docflow",
		Usage:     "Document ingestion pipeline and scheduler",
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"DOCFLOW_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error); overrides log.level",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Also write JSON logs to this file; overrides log.file",
			},
		},
		Before: state.setup,
		After:  state.teardown,
	}
	app.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "Run a worker and the scheduler in one process",
			Action: state.runCommand,
		},
		{
			Name:   "worker",
			Usage:  "Consume and process pipeline jobs",
			Action: state.workerCommand,
			Flags: []cli.Flag{
				&cli.StringSliceFlag{
					Name:  "queues",
					Usage: "Queues to consume (default: every routed queue)",
				},
				&cli.IntFlag{
					Name:  "concurrency",
					Usage: "Maximum jobs processed at once; overrides worker.concurrency",
				},
				&cli.BoolFlag{
					Name:  "drain",
					Usage: "Process until the queues are empty, then exit",
				},
			},
		},
		{
			Name:   "scheduler",
			Usage:  "Enqueue due feeds and experiences",
			Action: state.schedulerCommand,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "once",
					Usage: "Run a single tick and print its report",
				},
			},
		},
		{
			Name:   "ingest",
			Usage:  "Ingest a file or a text body into a knowledge base",
			Action: state.ingestCommand,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "kb",
					Usage:    "Knowledge base ID",
					Required: true,
				},
				&cli.StringFlag{
					Name:  "file",
					Usage: "File to stage for text extraction",
				},
				&cli.StringFlag{
					Name:  "text",
					Usage: "Text to ingest directly",
				},
				&cli.StringFlag{
					Name:  "title",
					Usage: "Document title",
				},
				&cli.StringFlag{
					Name:  "source-id",
					Usage: "Stable source identity (default: the file name)",
				},
				&cli.BoolFlag{
					Name:  "force",
					Usage: "Reingest even if the content is unchanged",
				},
			},
		},
		{
			Name:  "kb",
			Usage: "Manage knowledge bases",
			Subcommands: []*cli.Command{
				{
					Name:   "create",
					Usage:  "Create a knowledge base",
					Action: state.kbCreateCommand,
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:     "name",
							Usage:    "Knowledge base name",
							Required: true,
						},
						&cli.StringFlag{
							Name:  "tenant",
							Usage: "Owning tenant ID",
						},
						&cli.BoolFlag{
							Name:  "profiling",
							Usage: "Profile documents after embedding",
							Value: true,
						},
					},
				},
				{
					Name:   "list",
					Usage:  "List knowledge bases",
					Action: state.kbListCommand,
				},
				{
					Name:   "reembed",
					Usage:  "Send every processed document back through the embed stage",
					Action: state.kbReembedCommand,
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:     "kb",
							Usage:    "Knowledge base ID",
							Required: true,
						},
						&cli.IntFlag{
							Name:  "batch-size",
							Usage: "Number of documents to process in each batch",
							Value: reembed.DefaultBatchSize,
						},
						&cli.IntFlag{
							Name:  "report-interval",
							Usage: "Report progress every N documents",
							Value: 100,
						},
						&cli.BoolFlag{
							Name:  "include-failed",
							Usage: "Also requeue documents in ERROR that have text",
						},
					},
				},
			},
		},
		{
			Name:  "feed",
			Usage: "Manage connector feeds",
			Subcommands: []*cli.Command{
				{
					Name:   "add",
					Usage:  "Add a feed",
					Action: state.feedAddCommand,
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:     "kb",
							Usage:    "Knowledge base ID",
							Required: true,
						},
						&cli.StringFlag{
							Name:  "plugin",
							Usage: "Feed plugin name",
							Value: worker.DirectoryPluginName,
						},
						&cli.DurationFlag{
							Name:  "interval",
							Usage: "Run every interval",
						},
						&cli.StringFlag{
							Name:  "cron",
							Usage: "Standard 5-field cron expression; takes precedence over --interval",
						},
						&cli.StringSliceFlag{
							Name:  "param",
							Usage: "Plugin parameter as key=value (repeatable)",
						},
					},
				},
			},
		},
		{
			Name:  "queue",
			Usage: "Inspect queues",
			Subcommands: []*cli.Command{
				{
					Name:   "stats",
					Usage:  "Show queue lengths and dead letters",
					Action: state.queueStatsCommand,
				},
			},
		},
	}
	return app
}

func (s *cliState) setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if file := c.String("log-file"); file != "" {
		cfg.Log.File = file
	}
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger, closeLog := config.SetupLogger(cfg.Log.File, level)
	slog.SetDefault(logger)
	s.cfg = cfg
	s.closeLog = closeLog
	return nil
}

func (s *cliState) teardown(c *cli.Context) error {
	if s.closeLog == nil {
		return nil
	}
	return s.closeLog()
}

func (s *cliState) openEngine(ctx context.Context) (*docflow.Engine, error) {
	opts := append([]docflow.EngineOption{
		docflow.WithLogger(slog.Default()),
		docflow.WithPlugins(&worker.DirectoryPlugin{}),
	}, s.engineOpts...)
	engine, err := docflow.NewEngine(ctx, s.cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return engine, nil
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func (s *cliState) runCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()

	engine, err := s.openEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	slog.Info("docflow running", "queue_backend", s.cfg.Queue.Backend)
	return engine.Run(ctx)
}

func (s *cliState) workerCommand(c *cli.Context) error {
	if queues := c.StringSlice("queues"); len(queues) > 0 {
		s.cfg.Worker.Queues = queues
	}
	if n := c.Int("concurrency"); n > 0 {
		s.cfg.Worker.Concurrency = n
	}

	ctx, stop := signalContext(c)
	defer stop()

	engine, err := s.openEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	w, err := engine.NewWorker()
	if err != nil {
		return err
	}
	defer w.Release()

	if c.Bool("drain") {
		n, err := w.Drain(ctx)
		fmt.Fprintf(c.App.Writer, "processed %d jobs\n", n)
		return err
	}
	slog.Info("worker started", "queues", w.Queues())
	return w.Run(ctx)
}

func (s *cliState) schedulerCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()

	engine, err := s.openEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	driver, err := engine.NewScheduler()
	if err != nil {
		return err
	}
	if !c.Bool("once") {
		return driver.Run(ctx)
	}

	report := driver.Tick(ctx)
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tDUE\tENQUEUED\tSKIPPED\tSTALE\tERRORS")
	for _, name := range report.Names() {
		r := report[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", name, r.Due, r.Enqueued, r.Skipped, r.StaleCleaned, r.Errors)
	}
	return tw.Flush()
}

func (s *cliState) ingestCommand(c *cli.Context) error {
	file, text := c.String("file"), c.String("text")
	if (file == "") == (text == "") {
		return fmt.Errorf("exactly one of --file or --text is required")
	}

	ctx := c.Context
	engine, err := s.openEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	var result *ingestion.Result
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		sourceID := c.String("source-id")
		if sourceID == "" {
			sourceID = filepath.Base(file)
		}
		result, err = engine.Ingestion().IngestDocument(ctx, &ingestion.DocumentRequest{
			KnowledgeBaseID: c.String("kb"),
			SourceID:        sourceID,
			Filename:        filepath.Base(file),
			Data:            data,
			Title:           c.String("title"),
			ForceReingest:   c.Bool("force"),
		})
		if err != nil {
			return err
		}
	} else {
		result, err = engine.Ingestion().IngestText(ctx, &ingestion.TextRequest{
			KnowledgeBaseID: c.String("kb"),
			SourceID:        c.String("source-id"),
			Title:           c.String("title"),
			Content:         text,
			ForceReingest:   c.Bool("force"),
		})
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(c.App.Writer, "document %s status=%s skipped=%t", result.DocumentID, result.Status, result.Skipped)
	if result.JobID != "" {
		fmt.Fprintf(c.App.Writer, " job=%s", result.JobID)
	}
	fmt.Fprintln(c.App.Writer)
	return nil
}

func (s *cliState) kbCreateCommand(c *cli.Context) error {
	engine, err := s.openEngine(c.Context)
	if err != nil {
		return err
	}
	defer engine.Close()

	kb, err := engine.Stores().KnowledgeBases.AddKnowledgeBase(c.Context, &core.KnowledgeBase{
		Name:             c.String("name"),
		TenantID:         c.String("tenant"),
		ProfilingEnabled: c.Bool("profiling"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, kb.ID)
	return nil
}

func (s *cliState) kbListCommand(c *cli.Context) error {
	engine, err := s.openEngine(c.Context)
	if err != nil {
		return err
	}
	defer engine.Close()

	kbs, err := engine.Stores().KnowledgeBases.ListKnowledgeBases(c.Context)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPROFILING\tCREATED")
	for _, kb := range kbs {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", kb.ID, kb.Name, kb.ProfilingEnabled, kb.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func (s *cliState) kbReembedCommand(c *cli.Context) error {
	engine, err := s.openEngine(c.Context)
	if err != nil {
		return err
	}
	defer engine.Close()

	r, err := reembed.New(engine.Stores().Documents, engine.Backend(),
		reembed.WithRouter(engine.Router()),
		reembed.WithBatchSize(c.Int("batch-size")),
		reembed.WithProgress(c.App.ErrWriter, c.Int("report-interval")),
		reembed.WithIncludeFailed(c.Bool("include-failed")),
		reembed.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	summary, err := r.Run(c.Context, c.String("kb"))
	if summary != nil {
		fmt.Fprintf(c.App.Writer, "queued=%d skipped=%d failed=%d\n", summary.Queued, summary.Skipped, summary.Failed)
	}
	return err
}

func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid param %q, expected key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}

func (s *cliState) feedAddCommand(c *cli.Context) error {
	params, err := parseParams(c.StringSlice("param"))
	if err != nil {
		return err
	}
	trigger := core.Trigger{Interval: c.Duration("interval"), Cron: c.String("cron")}
	if err := trigger.Validate(); err != nil {
		return fmt.Errorf("one of --interval or --cron is required: %w", err)
	}

	engine, err := s.openEngine(c.Context)
	if err != nil {
		return err
	}
	defer engine.Close()

	plugin := c.String("plugin")
	if _, err := engine.Plugins().Lookup(plugin); err != nil {
		slog.Warn("plugin is not registered in this binary", "plugin", plugin)
	}
	if _, err := engine.Stores().KnowledgeBases.GetKnowledgeBase(c.Context, c.String("kb")); err != nil {
		return fmt.Errorf("knowledge base %s: %w", c.String("kb"), err)
	}
	feed, err := engine.Stores().Feeds.AddFeed(c.Context, &core.Feed{
		KnowledgeBaseID: c.String("kb"),
		PluginName:      plugin,
		Params:          params,
		Trigger:         trigger,
		Enabled:         true,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s next_run=%s\n", feed.ID, feed.NextRunAt.Format(time.RFC3339))
	return nil
}

func (s *cliState) queueStatsCommand(c *cli.Context) error {
	engine, err := s.openEngine(c.Context)
	if err != nil {
		return err
	}
	defer engine.Close()

	stats, err := queue.Inspect(c.Context, engine.Backend(), engine.Router().Queues()...)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUEUE\tLENGTH\tDEAD")
	for _, st := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", st.Queue, st.Length, st.DeadLetters)
	}
	return tw.Flush()
}
