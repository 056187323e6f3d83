// Package main is the circuitforge entry point: a "serve" command that
// exposes the SSE design endpoint over HTTP, and a "design" command that
// drives one request from the terminal against a running server.
package main

import (
	"bytes"
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/codenerd-labs/circuitforge/internal/config"
	"github.com/codenerd-labs/circuitforge/internal/httpapi"
	"github.com/codenerd-labs/circuitforge/internal/logging"
	"github.com/codenerd-labs/circuitforge/internal/orchestrator"
	"github.com/codenerd-labs/circuitforge/internal/perception"
	"github.com/codenerd-labs/circuitforge/internal/session"
)

var (
	verbose   bool
	apiKey    string
	workspace string
	addr      string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "circuitforge",
	Short: "circuitforge - deterministic LLM-driven circuit repair orchestrator",
	Long: `circuitforge drives an external generation model through a bounded,
stateful repair loop for printed-circuit-board designs: it validates
generated source through two independent checkers, classifies diagnostics,
escalates repair strategies, and streams granular progress over SSE.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the SSE design server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()

		resolvedKey := apiKey
		if resolvedKey == "" {
			resolvedKey = os.Getenv("ANTHROPIC_API_KEY")
		}

		var stream perception.ModelStream
		var arch perception.ArchitectureModel
		var guardrails perception.AdaptiveGuardrails
		if resolvedKey != "" {
			client := perception.NewAnthropicClient(resolvedKey)
			stream = client
			arch = perception.LLMArchitectureModel{Client: client}
			guardrails = perception.LLMAdaptiveGuardrails{Client: client}
		}

		orch := orchestrator.New(
			session.NewMemoryStore(),
			session.NewRegistry(),
			stream,
			nil, // Checker: the compile+validate pipeline is an external collaborator, wired at deployment time.
			arch,
			guardrails,
			cfg,
		)

		server := httpapi.NewServer(orch, resolvedKey != "", time.Duration(cfg.StatusPulseMS)*time.Millisecond)

		logger.Info("circuitforge serving", zap.String("addr", addr), zap.Bool("modelApiKeyPresent", resolvedKey != ""))
		return http.ListenAndServe(addr, server.Routes())
	},
}

var designPrompt string
var designPhase string
var designServerURL string

var designCmd = &cobra.Command{
	Use:   "design",
	Short: "Drive one design request against a running circuitforge server and print the event stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		if designPrompt == "" {
			return fmt.Errorf("--prompt is required")
		}

		body, err := json.Marshal(httpapi.DesignRequest{Prompt: designPrompt, Phase: designPhase})
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}

		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, designServerURL+"/v1/design", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			fmt.Println(scanner.Text())
		}
		return scanner.Err()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Generation model API key (or set ANTHROPIC_API_KEY env)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory for file-based telemetry (default: current)")

	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")

	designCmd.Flags().StringVar(&designPrompt, "prompt", "", "Design prompt to send")
	designCmd.Flags().StringVar(&designPhase, "phase", "", "Explicit phase override")
	designCmd.Flags().StringVar(&designServerURL, "server", "http://localhost:8080", "circuitforge server base URL")

	rootCmd.AddCommand(serveCmd, designCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
