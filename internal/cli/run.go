package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"

	"github.com/harun/ouro/internal/config"
	"github.com/harun/ouro/internal/logger"
	"github.com/harun/ouro/internal/observability"
	"github.com/harun/ouro/pkg/agent"
	"github.com/harun/ouro/pkg/browser"
	"github.com/harun/ouro/pkg/coretools"
	"github.com/harun/ouro/pkg/events"
	"github.com/harun/ouro/pkg/history"
	"github.com/harun/ouro/pkg/llm"
	"github.com/harun/ouro/pkg/memory"
	"github.com/harun/ouro/pkg/pricing"
	"github.com/harun/ouro/pkg/toolexecutor"
	"github.com/harun/ouro/pkg/usage"
)

var (
	runBudget    float64
	runModel     string
	runEffort    string
	runImage     string
	runEvolution bool
)

var runCmd = &cobra.Command{
	Use:   "run [task description]",
	Short: "Run a single agent task to completion",
	Long: `Run executes one task through the agent loop and prints the final
response. The task description is taken from the arguments, or from
stdin when no arguments are given.`,
	RunE: runTask,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Float64Var(&runBudget, "budget", 0, "budget ceiling in USD (default from config)")
	runCmd.Flags().StringVar(&runModel, "model", "", "model override (default from config)")
	runCmd.Flags().StringVar(&runEffort, "effort", "", "reasoning effort hint (low, medium, high)")
	runCmd.Flags().StringVar(&runImage, "image", "", "path to an image attached to the task")
	runCmd.Flags().BoolVar(&runEvolution, "evolution", false, "run as a self-improvement task with the stricter context cap")
}

func runTask(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	content := strings.TrimSpace(strings.Join(args, " "))
	if content == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read task from stdin: %w", err)
		}
		content = strings.TrimSpace(string(data))
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return err
	}
	defer log.Close()

	sink, err := events.NewSink(filepath.Join(cfg.DataDir, "events"))
	if err != nil {
		return fmt.Errorf("failed to open event sink: %w", err)
	}
	defer sink.Close()

	cache := pricing.NewCache(
		pricing.WithFetch(pricing.OpenRouterFetch(&http.Client{Timeout: 30 * time.Second})),
		pricing.WithLogger(log.Zerolog()),
	)
	router := llm.NewRouter(llm.RouterConfig{
		AnthropicAPIKey:   cfg.Providers.AnthropicAPIKey,
		OpenAIAPIKey:      cfg.Providers.OpenAIAPIKey,
		OpenRouterAPIKey:  cfg.Providers.OpenRouterAPIKey,
		OpenRouterBaseURL: cfg.Providers.OpenRouterBaseURL,
		FreeTierModel:     cfg.Providers.FreeTierModel,
		PaidTier:          cfg.Providers.PaidTier,
	}, cache, log.Zerolog())

	model := cfg.Models.Default
	if runModel != "" {
		model = runModel
	}
	chain := llm.FallbackChain(cfg.Models.Fallback)
	if len(chain) == 0 {
		chain = llm.FallbackChain{model}
	}
	client := llm.NewClient(router, chain,
		llm.WithMaxAttempts(cfg.Models.MaxAttempts),
		llm.WithRequestTimeout(time.Duration(cfg.Models.RequestTimeoutS)*time.Second),
		llm.WithLogger(log.Zerolog()),
	)

	if err := os.MkdirAll(cfg.DriveRoot, 0755); err != nil {
		return fmt.Errorf("failed to create drive root: %w", err)
	}
	store, err := memory.NewStore(memory.StoreConfig{
		DriveRoot: cfg.DriveRoot,
		RepoRoot:  cfg.RepoRoot,
		Logger:    log.Zerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to open memory store: %w", err)
	}
	defer store.Close()

	hist, err := history.Open(filepath.Join(cfg.DataDir, "history.db"))
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer hist.Close()

	var session *browser.Session
	if cfg.Tools.BrowserEnabled {
		session = browser.NewSession(browser.Config{
			Headless:  cfg.Tools.BrowserHeadless,
			NoSandbox: cfg.Tools.BrowserNoSandbox,
		}, log.Zerolog())
		defer session.Close()
	}

	registry := toolexecutor.NewRegistry()
	if err := coretools.Register(registry, coretools.Options{
		History:      hist,
		Browser:      session,
		ShellTimeout: time.Duration(cfg.Tools.ShellTimeoutS) * time.Second,
	}); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}

	taskID, err := gonanoid.New()
	if err != nil {
		return err
	}

	engine := toolexecutor.NewEngine(registry, &toolexecutor.Env{
		RepoRoot:  cfg.RepoRoot,
		DriveRoot: cfg.DriveRoot,
		TaskID:    taskID,
		Sink:      sink,
	}, log.Zerolog())
	if session != nil {
		// A stateful timeout must discard the wedged browser along with the
		// lane worker; the session relaunches lazily on the next call.
		engine.OnStickyReset(session.Close)
	}

	builder := agent.NewContextBuilder(store, agent.BuilderConfig{
		BasePrompt:      cfg.Context.BasePrompt,
		BibleMaxChars:   cfg.Context.BibleMaxChars,
		SectionMaxChars: cfg.Context.SectionMaxChars,
		SoftCapDefault:  cfg.Context.SoftCapDefault,
		SoftCapLow:      cfg.Context.SoftCapLow,
		LowPrefixes:     cfg.Context.LowPrefixes,
	}, log.Zerolog())

	runner, err := agent.NewRunner(agent.Config{
		Client:           client,
		Engine:           engine,
		Builder:          builder,
		Accountant:       usage.NewAccountant(cache, sink, log.Zerolog()),
		Sink:             sink,
		History:          hist,
		Logger:           log.Zerolog(),
		Model:            model,
		MaxRounds:        cfg.Loop.MaxRounds,
		MaxOutputTokens:  cfg.Models.MaxOutputTokens,
		ToolErrorLimit:   cfg.Loop.ToolErrorLimit,
		ForceFraction:    cfg.Budget.ForceFraction,
		WarnFraction:     cfg.Budget.WarnFraction,
		AdvisoryCadence:  cfg.Budget.AdvisoryCadence,
		SelfCheckCadence: cfg.Budget.SelfCheckCadence,
	})
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Warn().Err(err).Str("addr", cfg.Metrics.Addr).Msg("metrics server stopped")
			}
		}()
	}

	task := agent.Task{
		ID:        taskID,
		Type:      agent.TaskUser,
		Content:   content,
		Effort:    runEffort,
		BudgetUSD: cfg.Budget.DefaultUSD,
	}
	if runEvolution {
		task.Type = agent.TaskEvolution
	}
	if runBudget > 0 {
		task.BudgetUSD = runBudget
	}
	if runImage != "" {
		data, err := os.ReadFile(runImage)
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}
		task.ImageB64 = base64.StdEncoding.EncodeToString(data)
		task.MediaType = imageMediaType(runImage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := runner.Run(ctx, task)
	if err != nil {
		return fmt.Errorf("task %s failed (%s after %d rounds): %w", task.ID, result.Status, result.Rounds, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, result.FinalText)
	fmt.Fprintf(out, "\n[%s: %d rounds, $%.4f of $%.2f spent]\n",
		result.Status, result.Rounds, result.Budget.SpentUSD, result.Budget.CeilingUSD)
	return nil
}

func imageMediaType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
