package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/theapemachine/supabase-a2a/pkg/a2a"
)

var (
	agentURLFlag  string
	sessionFlag   string
	streamFlag    bool
	historyLength int

	clientCmd = &cobra.Command{
		Use:   "client",
		Short: "A2A client operations",
		Long:  `Run client operations against the Supabase agent`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	sendCmd = &cobra.Command{
		Use:   "send [question]",
		Short: "Send a question to the agent and print the resulting task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			question := strings.Join(args, " ")

			client, err := a2a.FetchAgentCard(ctx, agentURLFlag)
			if err != nil {
				return fmt.Errorf("failed to discover agent: %w", err)
			}

			log.Info("discovered agent", "name", client.Card.Name, "url", client.Card.URL)

			sessionID := sessionFlag
			if sessionID == "" {
				sessionID = uuid.New().String()
			}

			params := a2a.TaskSendParams{
				ID:        uuid.New().String(),
				SessionID: sessionID,
				Message:   *a2a.NewTextMessage("user", question),
			}

			if streamFlag {
				return client.SendStream(ctx, params,
					func(evt a2a.TaskStatusUpdateEvent) {
						if evt.Status.Message != nil {
							fmt.Println(evt.Status.Message.String())
						}
						if evt.Final {
							fmt.Println("state:", evt.Status.State)
						}
					},
					func(evt a2a.TaskArtifactUpdateEvent) {
						for _, part := range evt.Artifact.Parts {
							fmt.Println(part.Text)
						}
					},
				)
			}

			task, err := client.Send(ctx, params)
			if err != nil {
				return err
			}

			fmt.Println(task.String())
			return nil
		},
	}

	getCmd = &cobra.Command{
		Use:   "get [task-id]",
		Short: "Fetch a task by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := a2a.FetchAgentCard(ctx, agentURLFlag)
			if err != nil {
				return fmt.Errorf("failed to discover agent: %w", err)
			}

			var history *int
			if cmd.Flags().Changed("history") {
				history = &historyLength
			}

			task, err := client.Get(ctx, args[0], history)
			if err != nil {
				return err
			}

			fmt.Println(task.String())
			return nil
		},
	}
)

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.AddCommand(sendCmd)
	clientCmd.AddCommand(getCmd)

	clientCmd.PersistentFlags().StringVarP(&agentURLFlag, "agent", "a", "http://localhost:10001", "Base URL of the agent")
	sendCmd.Flags().StringVarP(&sessionFlag, "session", "s", "", "Session ID to continue a conversation")
	sendCmd.Flags().BoolVar(&streamFlag, "stream", false, "Stream status updates over SSE")
	getCmd.Flags().IntVar(&historyLength, "history", 0, "Number of history messages to include (omit for full history)")
}
