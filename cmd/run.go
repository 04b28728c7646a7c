package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/ikoma-ai/ikoma/internal/agent"
	"github.com/ikoma-ai/ikoma/internal/checkpoint"
	"github.com/ikoma-ai/ikoma/internal/citations"
	"github.com/ikoma-ai/ikoma/internal/config"
	"github.com/ikoma-ai/ikoma/internal/fetcher"
	"github.com/ikoma-ai/ikoma/internal/llm"
	"github.com/ikoma-ai/ikoma/internal/logger"
	"github.com/ikoma-ai/ikoma/internal/memory"
	"github.com/ikoma-ai/ikoma/internal/tools"
)

var (
	flagGoal         string
	flagContinuous   bool
	flagMaxIter      int
	flagTimeLimit    time.Duration
	flagNoCheckpoint bool
	flagFailFast     bool
)

var runCmd = &cobra.Command{
	Use:   "run [goal]",
	Short: "Run a goal through the agent loop",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		goal := flagGoal
		if goal == "" && len(args) > 0 {
			goal = args[0]
		}
		if goal == "" {
			prompt := promptui.Prompt{
				Label: "Goal",
				Validate: func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("goal cannot be empty")
					}
					return nil
				},
			}
			entered, err := prompt.Run()
			if err != nil {
				return fmt.Errorf("read goal: %w", err)
			}
			goal = entered
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runGoal(ctx, goal)
	},
}

func init() {
	runCmd.Flags().StringVar(&flagGoal, "goal", "", "goal to accomplish (skips the interactive prompt)")
	runCmd.Flags().BoolVar(&flagContinuous, "continuous", false, "run without human checkpoints")
	runCmd.Flags().IntVar(&flagMaxIter, "max-iter", 0, "override the iteration limit")
	runCmd.Flags().DurationVar(&flagTimeLimit, "time-limit", 0, "override the wall-clock limit (e.g. 10m)")
	runCmd.Flags().BoolVar(&flagNoCheckpoint, "no-checkpoint", false, "disable checkpoint persistence for this run")
	runCmd.Flags().BoolVar(&flagFailFast, "fail-fast", false, "abort the execute phase on the first tool error")
	rootCmd.AddCommand(runCmd)
}

func runGoal(ctx context.Context, goal string) error {
	s := settings

	if home, err := os.UserHomeDir(); err == nil {
		logger.SetBasePath(filepath.Join(home, config.DefaultDataDir))
	}

	client, err := llm.New(ctx, llm.Config{
		Provider:       s.LLMProvider,
		Model:          s.LLMModel,
		EmbeddingModel: s.EmbeddingModel,
		APIKey:         s.LLMAPIKey,
		BaseURL:        s.LLMBaseURL,
	})
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}

	var checkpoints *checkpoint.Store
	if s.CheckpointerEnabled && !flagNoCheckpoint {
		checkpoints, err = checkpoint.Open(s.ConversationDBPath)
		if err != nil {
			return fmt.Errorf("open checkpoint store: %w", err)
		}
	}

	mem, err := memory.Open(s.VectorStorePath, client)
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}

	policy := fetcher.PolicyDeny
	if s.DomainPolicy == "allow" {
		policy = fetcher.PolicyAllow
	}
	filter := fetcher.NewDomainFilter(s.AllowFile, s.DenyFile, policy, config.DefaultFilterReloadInterval)
	defer filter.Close()
	httpFetcher := fetcher.New(fetcher.Options{
		Filter:   filter,
		CacheDir: s.CacheDir,
	})

	registry := tools.NewRegistry()
	citationRegistry := citations.NewRegistry()
	sandbox := tools.NewSandbox(s.SandboxDir)
	if err := os.MkdirAll(s.SandboxDir, 0o755); err != nil {
		return fmt.Errorf("create sandbox directory: %w", err)
	}

	userID := currentUserID()
	registry.MustRegister(&tools.RespondTool{})
	registry.MustRegister(&tools.CalculatorTool{})
	registry.MustRegister(&tools.CreateTextFileTool{Sandbox: sandbox})
	registry.MustRegister(&tools.ReadTextFileTool{Sandbox: sandbox})
	registry.MustRegister(&tools.ListSandboxFilesTool{Sandbox: sandbox})
	registry.MustRegister(&tools.WebFetchTool{Fetcher: httpFetcher, Memory: mem, Citations: citationRegistry})
	registry.MustRegister(&tools.MemorySearchTool{Memory: mem, UserID: userID})
	registry.MustRegister(&tools.MemoryStoreTool{Memory: mem, UserID: userID})

	runID := uuid.NewString()
	logger.SetRun(runID, goal)

	cfg := agent.RunConfig{
		RunID:           runID,
		UserID:          userID,
		Goal:            goal,
		MaxIterations:   s.Limits.MaxIterations,
		TimeLimit:       s.Limits.TimeLimit,
		CheckpointEvery: s.Limits.CheckpointEvery,
		MaxPlanRetries:  s.Limits.MaxPlanRetries,
		Interactive:     !flagContinuous,
		FailFast:        flagFailFast,
	}
	if flagMaxIter > 0 {
		cfg.MaxIterations = flagMaxIter
	}
	if flagTimeLimit > 0 {
		cfg.TimeLimit = flagTimeLimit
	}

	controller := &agent.Controller{
		LLM:         client,
		Tools:       registry,
		Checkpoints: checkpoints,
		Memory:      mem,
		Citations:   citationRegistry,
		Confirm:     confirmContinue,
	}

	result, err := controller.Run(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Println(result.FinalMessage)

	stats := httpFetcher.Stats()
	slog.Debug("fetch summary", "domains", len(stats.Domains), "cache_hits", stats.CacheHits)
	return nil
}

// confirmContinue is the human checkpoint prompt. Returning false stops the
// run.
func confirmContinue(iteration int) bool {
	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("Iteration %d complete. Continue", iteration),
		IsConfirm: true,
		Default:   "y",
	}
	_, err := prompt.Run()
	return err == nil
}

func currentUserID() string {
	if u := os.Getenv("IKOMA_USER_ID"); u != "" {
		return u
	}
	return "default"
}
