package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sitebuilder/pkg/config"
)

func newSecretsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the encrypted project secrets file",
	}

	set := &cobra.Command{
		Use:   "set NAME",
		Short: "Store a secret (read without echo, or from stdin when piped)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSecretsSet(cmd, root, args[0])
		},
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored secret names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secrets, _, err := openSecrets(cmd, root, false)
			if err != nil {
				return err
			}
			config.SetDecryptedSecrets(secrets)
			for _, name := range config.GetDecryptedSecretNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	cmd.AddCommand(set, list)
	return cmd
}

func runSecretsSet(cmd *cobra.Command, root *rootOptions, name string) error {
	secrets, password, err := openSecrets(cmd, root, true)
	if err != nil {
		return err
	}

	value, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("Value for %s: ", name))
	if err != nil {
		return err
	}
	if value == "" {
		return fmt.Errorf("refusing to store an empty value for %s", name)
	}

	config.SetDecryptedSecrets(secrets)
	config.SetSecret(name, value)
	if err := config.SaveSecretsToFile(root.projectDir, password); err != nil {
		return fmt.Errorf("failed to encrypt secrets: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %s saved to %s/secrets.json.enc\n", name, config.ProjectConfigDir)
	return nil
}

// openSecrets decrypts the secrets file, or starts an empty set when creating is allowed and
// no file exists yet.
func openSecrets(cmd *cobra.Command, root *rootOptions, create bool) (map[string]string, string, error) {
	exists := config.SecretsFileExists(root.projectDir)
	if !exists && !create {
		return map[string]string{}, "", nil
	}

	password := os.Getenv(envPassword)
	if password == "" {
		if !isTerminal(cmd.InOrStdin()) {
			return nil, "", fmt.Errorf("%s must be set when stdin is not a terminal", envPassword)
		}
		p, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "🔐 Project password: ")
		if err != nil {
			return nil, "", err
		}
		if !exists {
			confirm, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "Confirm password: ")
			if err != nil {
				return nil, "", err
			}
			if confirm != p {
				return nil, "", fmt.Errorf("passwords do not match")
			}
		}
		password = p
	}
	if password == "" {
		return nil, "", fmt.Errorf("an empty project password is not allowed")
	}

	if !exists {
		return map[string]string{}, password, nil
	}
	secrets, err := config.DecryptSecretsFile(root.projectDir, password)
	if err != nil {
		return nil, "", err
	}
	return secrets, password, nil
}
