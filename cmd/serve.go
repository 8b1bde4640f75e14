package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/theapemachine/supabase-a2a/pkg/a2a"
	"github.com/theapemachine/supabase-a2a/pkg/agent"
	"github.com/theapemachine/supabase-a2a/pkg/push"
	"github.com/theapemachine/supabase-a2a/pkg/service"
	"github.com/theapemachine/supabase-a2a/pkg/stores"
)

var (
	hostFlag string
	portFlag int

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the Supabase A2A service",
		Long:  longServe,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	agentCmd = &cobra.Command{
		Use:   "agent",
		Short: "Serve the Supabase A2A agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveAgent(cmd.Context())
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.AddCommand(agentCmd)

	serveCmd.PersistentFlags().IntVarP(&portFlag, "port", "p", 10001, "Port to serve on")
	serveCmd.PersistentFlags().StringVarP(&hostFlag, "host", "H", "localhost", "Host address to bind to")
}

func serveAgent(ctx context.Context) error {
	conf, err := agentConfigFromEnv()
	if err != nil {
		return err
	}

	stateStore := stores.NewInMemoryStateStore()
	supabaseAgent := agent.New(conf, stateStore)

	if err := supabaseAgent.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize agent: %w", err)
	}
	defer supabaseAgent.Cleanup()

	pushSvc, err := push.NewService()
	if err != nil {
		return fmt.Errorf("failed to create push notification service: %w", err)
	}

	manager := service.NewAgentTaskManager(
		supabaseAgent, stores.NewInMemoryTaskStore(), pushSvc,
	)

	addr := fmt.Sprintf("%s:%d", hostFlag, portFlag)
	card := a2a.NewAgentCardFromConfig("supabase", fmt.Sprintf("http://%s/", addr))
	srv := service.NewA2AServer(*card, manager, pushSvc)

	mux := http.NewServeMux()
	for path, handler := range srv.Handlers() {
		mux.Handle(path, handler)
	}

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", addr, "agent", card.Name)
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig)
	case <-ctx.Done():
		log.Info("shutting down", "reason", ctx.Err())
	}

	srv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return httpSrv.Shutdown(shutdownCtx)
}

func agentConfigFromEnv() (agent.Config, error) {
	conf := agent.Config{
		MCPServerURL:    envOr("SUPABASE_MCP_SERVER_URL", "http://localhost:3000"),
		MCPAPIKey:       os.Getenv("SUPABASE_API_KEY"),
		AzureEndpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureAPIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
		AzureAPIVersion: os.Getenv("AZURE_OPENAI_API_VERSION"),
		AzureDeployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT_NAME"),
	}

	for name, value := range map[string]string{
		"SUPABASE_API_KEY":             conf.MCPAPIKey,
		"AZURE_OPENAI_ENDPOINT":        conf.AzureEndpoint,
		"AZURE_OPENAI_API_KEY":         conf.AzureAPIKey,
		"AZURE_OPENAI_API_VERSION":     conf.AzureAPIVersion,
		"AZURE_OPENAI_DEPLOYMENT_NAME": conf.AzureDeployment,
	} {
		if value == "" {
			return agent.Config{}, fmt.Errorf("%s environment variable not set", name)
		}
	}

	return conf, nil
}

func envOr(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

var longServe = `
Serve the Supabase A2A agent.

The agent connects to a Supabase MCP server for its database tools and to an
Azure OpenAI deployment for reasoning.  Configure both through the
environment (or a .env file):

  SUPABASE_MCP_SERVER_URL        URL of the Supabase MCP server (default http://localhost:3000)
  SUPABASE_API_KEY               Bearer token for the MCP server
  AZURE_OPENAI_ENDPOINT          Azure OpenAI resource endpoint
  AZURE_OPENAI_API_KEY           Azure OpenAI API key
  AZURE_OPENAI_API_VERSION       Azure OpenAI API version
  AZURE_OPENAI_DEPLOYMENT_NAME   Azure OpenAI deployment to use

Examples:
  # Serve the agent on the default port
  supabase-a2a serve agent

  # Serve the agent on a custom host and port
  supabase-a2a serve agent --host 0.0.0.0 --port 8080
`
