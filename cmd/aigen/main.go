package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/aigen/pkg/chat"
	"github.com/ravi-parthasarathy/aigen/pkg/chat/redisstore"
	"github.com/ravi-parthasarathy/aigen/pkg/config"
	"github.com/ravi-parthasarathy/aigen/pkg/pipeline"
	"github.com/ravi-parthasarathy/aigen/pkg/pipeline/handlers"
	"github.com/ravi-parthasarathy/aigen/pkg/server"

	// Register all LLM providers via their init() functions.
	_ "github.com/ravi-parthasarathy/aigen/pkg/llm/providers"
)

const defaultPipelinePath = "config/example_pipeline.yaml"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the resolved configuration to every subcommand.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	cfg        *config.Config
}

func rootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "aigen",
		Short: "aigen: YAML node pipelines with chat-model calls",
		Long: `aigen executes YAML instruction lists. Each instruction names a node
(SetVariable, ReadFile, ChatCall, ...) and its parameters; nodes share one
variable context and run strictly in order.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "TOML config file (optional)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(a.runCmd())
	root.AddCommand(a.lintCmd())
	root.AddCommand(a.resumeCmd())
	root.AddCommand(graphCmd())
	root.AddCommand(a.serveCmd())
	root.AddCommand(a.historyCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = a.logFormat
	}
	if err := initLogger(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// ─── run ──────────────────────────────────────────────────────────────────────

func (a *app) runCmd() *cobra.Command {
	var (
		checkpointPath string
		outputPath     string
		model          string
		seed           string
		mock           bool
		sets           []string
	)

	cmd := &cobra.Command{
		Use:   "run [pipeline.yaml]",
		Short: "Execute a pipeline from the first step",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultPipelinePath
			if len(args) == 1 {
				path = args[0]
			}
			if cmd.Flags().Changed("checkpoint") {
				a.cfg.Checkpoint = checkpointPath
			}
			if cmd.Flags().Changed("mock") {
				a.cfg.Chat.Mock = mock
			}
			if model != "" {
				a.cfg.Chat.DefaultModel = model
			}

			pctx := pipeline.NewPipelineContext()
			if err := applySets(pctx, sets); err != nil {
				return err
			}
			return a.execute(cmd.Context(), path, pctx, 0, seed, outputPath)
		},
	}

	cmd.Flags().StringVar(&checkpointPath, "checkpoint", "", "path to write a YAML checkpoint after every step")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the final context to this file (.json or .yaml)")
	cmd.Flags().StringVar(&model, "model", "", "default chat model (provider:model-id)")
	cmd.Flags().StringVar(&seed, "seed", "", "seed value stored in the context by the Start node")
	cmd.Flags().BoolVar(&mock, "mock", false, "answer every ChatCall with the mock reply instead of calling a model")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "seed a context variable (key=value, repeatable)")
	return cmd
}

// ─── lint ─────────────────────────────────────────────────────────────────────

func (a *app) lintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint <pipeline.yaml>",
		Short: "Validate a pipeline file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pipeline.ParseFile(args[0])
			if err != nil {
				return err
			}
			reg := handlers.NewDefaultRegistry(handlers.Options{Chat: handlers.ChatCallConfig{
				Backends: handlers.MockBackends(""),
			}})
			if lintErr := pipeline.ValidateErr(p, reg); lintErr != nil {
				return lintErr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: pipeline %q is valid (%d steps)\n", p.Name, p.Len())
			return nil
		},
	}
}

// ─── resume ───────────────────────────────────────────────────────────────────

func (a *app) resumeCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "resume <pipeline.yaml> <checkpoint.yaml>",
		Short: "Resume a pipeline after the last checkpointed step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, cpFile := args[0], args[1]
			pctx, last, err := pipeline.LoadCheckpoint(cpFile)
			if err != nil {
				return fmt.Errorf("load checkpoint: %w", err)
			}
			slog.Info("resuming", "checkpoint", cpFile, "after_step", last)
			a.cfg.Checkpoint = cpFile
			return a.execute(cmd.Context(), path, pctx, last+1, "", outputPath)
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the final context to this file (.json or .yaml)")
	return cmd
}

// ─── serve ────────────────────────────────────────────────────────────────────

func (a *app) serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /run and /batch over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			chatCfg, closeStore, err := a.chatConfig()
			if err != nil {
				return err
			}
			defer closeStore()

			srv := server.New(server.Options{
				Chat:             chatCfg,
				AllowedOrigins:   a.cfg.Server.AllowedOrigins,
				BatchConcurrency: a.cfg.Server.BatchConcurrency,
			})
			httpSrv := &http.Server{
				Addr:              a.cfg.Server.Addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			errc := make(chan error, 1)
			go func() { errc <- httpSrv.ListenAndServe() }()
			slog.Info("serving", "addr", a.cfg.Server.Addr)

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// ─── history ──────────────────────────────────────────────────────────────────

func (a *app) historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or clear cached chat histories",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a cached chat history as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.store()
			if err != nil {
				return err
			}
			defer closeStore()
			entries, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeEntries(cmd.OutOrStdout(), entries)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear <session-id>...",
		Short: "Delete cached chat histories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.store()
			if err != nil {
				return err
			}
			defer closeStore()
			for _, id := range args {
				if err := store.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("clear %s: %w", id, err)
				}
			}
			return nil
		},
	})
	return cmd
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func (a *app) execute(ctx context.Context, path string, pctx *pipeline.PipelineContext, from int, seed, outputPath string) error {
	p, err := pipeline.ParseFile(path)
	if err != nil {
		return err
	}

	chatCfg, closeStore, err := a.chatConfig()
	if err != nil {
		return err
	}
	defer closeStore()

	reg := handlers.NewDefaultRegistry(handlers.Options{Out: os.Stdout, Seed: seed, Chat: chatCfg})
	if lintErr := pipeline.ValidateErr(p, reg); lintErr != nil {
		return fmt.Errorf("invalid pipeline: %w", lintErr)
	}

	eng, err := pipeline.NewEngine(p, reg, pctx, a.cfg.Checkpoint)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	sctx, stop := signalContext(ctx)
	defer stop()
	runErr := eng.Execute(sctx, from)
	if err := writeOutputContext(outputPath, eng.Context()); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// chatConfig builds the ChatCall settings from the resolved config. The
// returned func releases the cache store.
func (a *app) chatConfig() (handlers.ChatCallConfig, func(), error) {
	store, closeStore, err := a.store()
	if err != nil {
		return handlers.ChatCallConfig{}, nil, err
	}
	cc := handlers.ChatCallConfig{
		DefaultModel:  a.cfg.Chat.DefaultModel,
		DefaultRole:   a.cfg.Chat.DefaultRole,
		MaxTokens:     a.cfg.Chat.MaxTokens,
		MaxImageBytes: a.cfg.Chat.MaxImageBytes,
		Store:         store,
		Backends:      handlers.LiveBackends,
	}
	if a.cfg.Chat.Mock {
		cc.Backends = handlers.MockBackends(a.cfg.Chat.MockReply)
	}
	return cc, closeStore, nil
}

func (a *app) store() (chat.Store, func(), error) {
	switch a.cfg.Cache.Backend {
	case config.CacheRedis:
		s := redisstore.New(a.cfg.Cache.RedisAddr, os.Getenv("AIGEN_REDIS_PASSWORD"), 0,
			redisstore.WithPrefix(a.cfg.Cache.RedisPrefix),
			redisstore.WithTTL(a.cfg.Cache.RedisTTL.Duration),
		)
		return s, func() {
			if err := s.Close(); err != nil {
				slog.Warn("close redis store", "error", err)
			}
		}, nil
	case config.CacheFile:
		return chat.NewFileStore(a.cfg.Cache.Dir), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", a.cfg.Cache.Backend)
	}
}

// applySets stores each key=value pair in pctx.
func applySets(pctx *pipeline.PipelineContext, sets []string) error {
	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return fmt.Errorf("--set %q: want key=value", kv)
		}
		pctx.Set(key, value)
	}
	return nil
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM, or
// when the returned stop func is called.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		select {
		case <-ch:
			fmt.Fprintln(os.Stderr, "\n[aigen] interrupted, cancelling pipeline")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
