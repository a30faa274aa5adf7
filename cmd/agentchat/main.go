package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wangdinglu/prompts-to-agents/agentloop"
	"github.com/wangdinglu/prompts-to-agents/config"
	"github.com/wangdinglu/prompts-to-agents/modelclient"
)

var (
	// Global flags
	configPath string
	workspace  string
	model      string
	provider   string
	maxTurns   int
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "agentchat",
	Short: "agentchat - a tool-calling coding agent for your terminal",
	Long: `agentchat is an interactive coding agent. It connects a language model
to your workspace through a set of file, search, and shell tools, and
iterates until your request is done.

Run without arguments to start the interactive chat.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		zcfg.OutputPaths = []string{"stderr"}
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Run a single prompt non-interactively and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runOnce,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List known models",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, info := range modelclient.ListModels(provider) {
			fmt.Printf("%-24s %s (context %d)\n", info.ID, info.Provider, info.ContextWindow)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ~/.config/agentchat/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace root directory (default: current directory)")
	rootCmd.PersistentFlags().StringVarP(&model, "model", "m", "", "model to use")
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "provider to use (anthropic, openai)")
	rootCmd.PersistentFlags().IntVar(&maxTurns, "max-turns", 0, "tool rounds allowed per conversation")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(modelsCmd)
}

// loadConfig merges the config file with command line flag overrides.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if workspace != "" {
		cfg.Workspace.Root = workspace
	}
	if model != "" {
		cfg.Model.Model = model
	}
	if provider != "" {
		cfg.Model.Provider = provider
	}
	if maxTurns > 0 {
		cfg.Agent.MaxTurns = maxTurns
	}
	if cfg.Model.Model == "" {
		cfg.Model.Model = modelclient.DefaultModel(cfg.Model.Provider)
	}
	return cfg, nil
}

// buildSession assembles the session from configuration: workspace binding,
// execution environment, tool registry, and model client.
func buildSession(cfg *config.Config) (*agentloop.Session, error) {
	ws, err := agentloop.NewWorkspace(cfg.Workspace.Root)
	if err != nil {
		return nil, err
	}
	env := agentloop.NewLocalExecutionEnvironment(ws)

	registry := agentloop.NewToolRegistry()
	agentloop.RegisterCoreTools(registry, cfg.Agent.DefaultCommandTimeoutMs, cfg.Agent.MaxCommandTimeoutMs)

	adapterOpts := []modelclient.GollmAdapterOption{modelclient.WithModel(cfg.Model.Model)}
	if cfg.Model.MaxTokens > 0 {
		adapterOpts = append(adapterOpts, modelclient.WithMaxTokens(cfg.Model.MaxTokens))
	}
	if cfg.Model.Temperature != nil {
		adapterOpts = append(adapterOpts, modelclient.WithTemperature(*cfg.Model.Temperature))
	}
	adapter, err := modelclient.NewGollmAdapter(cfg.Model.Provider, cfg.Model.APIKey, adapterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s provider: %w", cfg.Model.Provider, err)
	}
	client := modelclient.NewClient(
		modelclient.WithProvider(cfg.Model.Provider, adapter),
		modelclient.WithDefaultProvider(cfg.Model.Provider),
		modelclient.WithMiddleware(
			modelclient.LoggingMiddleware(logger),
			modelclient.RetryMiddleware(modelclient.DefaultRetryPolicy()),
		),
	)

	sessionCfg := agentloop.DefaultSessionConfig()
	sessionCfg.MaxTurns = cfg.Agent.MaxTurns
	sessionCfg.DefaultCommandTimeoutMs = cfg.Agent.DefaultCommandTimeoutMs
	sessionCfg.MaxCommandTimeoutMs = cfg.Agent.MaxCommandTimeoutMs
	sessionCfg.Model = cfg.Model.Model
	sessionCfg.Provider = cfg.Model.Provider
	sessionCfg.EnableLoopDetection = cfg.Agent.EnableLoopDetection
	if cfg.Agent.SystemPromptFile != "" {
		sessionCfg.SystemPrompt = agentloop.LoadInstructions(cfg.Agent.SystemPromptFile)
	}
	if cfg.Agent.InstructionsFile != "" {
		sessionCfg.UserInstructions = agentloop.LoadInstructions(cfg.Agent.InstructionsFile)
	}

	return agentloop.NewSession(registry, env, client, &sessionCfg), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
