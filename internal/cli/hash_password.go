package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thruflo/goalboard/internal/auth"
)

// newPrompter returns the prompter used by hash-password.
// It can be overridden in tests.
var newPrompter = auth.TerminalPrompter

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash a dashboard password",
	Long: `Prompts for a password twice without echoing it and prints an argon2id
hash. Put the hash in .goalboard/config.yaml as server.password_hash to
require the password on the web dashboard.`,
	Args: cobra.NoArgs,
	RunE: runHashPassword,
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	password, err := newPrompter().PromptAndConfirm()
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), hash)
	fmt.Fprintln(cmd.ErrOrStderr(), "Set this as server.password_hash in .goalboard/config.yaml")
	return nil
}
