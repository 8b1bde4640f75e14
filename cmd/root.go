/*
Package cmd implements the command-line interface for the Supabase A2A agent.
It provides commands for serving the agent and for running client operations
against it.
*/
package cmd

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

/*
Embed a mini filesystem into the binary to hold the default config file.
This will be written to the home directory of the user running the service,
which allows a developer to easily override the config file.
*/
//go:embed cfg/*
var embedded embed.FS

/*
rootCmd represents the base command when called without any subcommands
*/
var (
	projectName = "supabase-a2a"
	cfgFile     string

	rootCmd = &cobra.Command{
		Use:   "supabase-a2a",
		Short: "An A2A agent that answers questions about a Supabase database",
		Long:  longRoot,
	}
)

/*
Execute is the main entry point for the supabase-a2a CLI.  It initializes the
root command and executes it.
*/
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yml",
		"config file (default is $HOME/."+projectName+"/config.yml)",
	)
}

/*
initConfig writes the default config file to the user's home directory if it
doesn't exist, then reads the config file from the user's home directory.
Secrets come from the environment, loaded from a .env file when present.
*/
func initConfig() {
	// Ignore the error: a missing .env file just means the environment is
	// configured externally.
	_ = godotenv.Load()

	if err := writeConfig(); err != nil {
		log.Fatal("failed to write config", "error", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	home, _ := os.UserHomeDir()
	viper.AddConfigPath(home + "/." + projectName)

	if err := viper.ReadInConfig(); err != nil {
		log.Fatal("failed to read config", "error", err)
	}
}

/*
writeConfig writes the default config file to the user's home directory.
*/
func writeConfig() (err error) {
	var (
		home, _ = os.UserHomeDir()
		fh      fs.File
		buf     bytes.Buffer
	)

	configDir := home + "/." + projectName
	if !checkFileExists(configDir) {
		if err = os.MkdirAll(configDir, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	for _, file := range []string{cfgFile} {
		fullPath := configDir + "/" + file

		if checkFileExists(fullPath) {
			continue
		}

		if fh, err = embedded.Open("cfg/" + file); err != nil {
			return fmt.Errorf("failed to open embedded config file: %w", err)
		}

		if _, err = io.Copy(&buf, fh); err != nil {
			fh.Close()
			return fmt.Errorf("failed to read embedded config file: %w", err)
		}

		if err = os.WriteFile(fullPath, buf.Bytes(), 0644); err != nil {
			fh.Close()
			return fmt.Errorf("failed to write config file: %w", err)
		}

		log.Info("wrote config file", "path", fullPath)
		buf.Reset()
		fh.Close()
	}

	return nil
}

func checkFileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !errors.Is(err, os.ErrNotExist)
}

/*
longRoot contains the detailed help text for the root command.
*/
var longRoot = `
supabase-a2a exposes a database Q&A agent over the Agent-to-Agent (A2A)
protocol.  The agent answers natural language questions about the data in a
Supabase project by calling tools on a remote Supabase MCP server, with the
reasoning done by an Azure OpenAI deployment.
`
