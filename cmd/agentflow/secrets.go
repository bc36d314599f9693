package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"agentflow/pkg/config"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage encrypted provider API keys",
	Long: `Secrets are stored in .agentflow/secrets.json.enc, encrypted with a key
derived from a password. The password is read from AGENTFLOW_SECRETS_PASSWORD
or prompted for on the terminal.

Available subcommands:
  set  - Store a secret
  list - List stored secret names`,
}

var secretsSetCmd = &cobra.Command{
	Use:   "set NAME [VALUE]",
	Short: "Store a secret",
	Long: `Store a secret such as OPENAI_API_KEY or ANTHROPIC_API_KEY. When VALUE
is omitted it is prompted for without echo.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSecretsSet,
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored secret names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !config.SecretsFileExists(workspaceDir) {
			fmt.Fprintln(cmd.OutOrStdout(), "no secrets file")
			return nil
		}
		password, err := secretsPassword(cmd)
		if err != nil {
			return err
		}
		m, err := config.DecryptSecretsFile(workspaceDir, password)
		if err != nil {
			return err
		}
		config.SetDecryptedSecrets(m)
		for _, name := range config.SecretNames() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() { //nolint:gochecknoinits // cobra command wiring
	secretsCmd.AddCommand(secretsSetCmd, secretsListCmd)
}

func secretsPassword(cmd *cobra.Command) (string, error) {
	if p := os.Getenv("AGENTFLOW_SECRETS_PASSWORD"); p != "" {
		return p, nil
	}
	return promptPassword(cmd.ErrOrStderr(), "Secrets password: ")
}

func runSecretsSet(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	if name == "" {
		return fmt.Errorf("secret name is required")
	}
	password, err := secretsPassword(cmd)
	if err != nil {
		return err
	}
	if config.SecretsFileExists(workspaceDir) {
		m, err := config.DecryptSecretsFile(workspaceDir, password)
		if err != nil {
			return err
		}
		config.SetDecryptedSecrets(m)
	}

	value := ""
	if len(args) == 2 {
		value = args[1]
	} else {
		value, err = promptPassword(cmd.ErrOrStderr(), name+": ")
		if err != nil {
			return err
		}
	}
	if value == "" {
		return fmt.Errorf("empty value for %s", name)
	}
	config.SetSecret(name, value)
	if err := config.SaveSecretsToFile(workspaceDir, password); err != nil {
		return fmt.Errorf("save secrets: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", name)
	return nil
}
