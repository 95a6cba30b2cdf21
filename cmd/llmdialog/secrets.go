package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"llmdialog/pkg/config"
	"llmdialog/pkg/logx"
)

// passwordEnv supplies the secrets password non-interactively.
const passwordEnv = "LLMDIALOG_PASSWORD"

// loadSecrets decrypts the project secrets file if present. Without one, secrets
// resolve from the environment only.
func loadSecrets(projectDir string) (*config.Secrets, error) {
	if !config.SecretsFileExists(projectDir) {
		return config.NewSecrets(nil), nil
	}

	password := os.Getenv(passwordEnv)
	if password == "" {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return nil, fmt.Errorf("secrets file found but %s is not set and stdin is not a terminal", passwordEnv)
		}
		p, err := readSecret("Enter secrets password: ")
		if err != nil {
			return nil, err
		}
		password = p
	}

	secrets, err := config.LoadSecrets(projectDir, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secrets: %w", err)
	}
	logx.Infof("loaded %d secrets from %s", len(secrets.Names()), config.SecretsPath(projectDir))
	return secrets, nil
}

// saveSecrets prompts for the API key and a password, then writes the encrypted file.
// Existing secrets are kept when the file can be decrypted with the same password.
func saveSecrets(projectDir string, cfg *config.Config) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("-save-secrets needs an interactive terminal")
	}

	name := cfg.Model.APIKeyEnv
	key, err := readSecret(fmt.Sprintf("Enter %s: ", name))
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("API key cannot be empty")
	}

	password, err := promptForPassword()
	if err != nil {
		return err
	}

	secrets := config.NewSecrets(nil)
	if config.SecretsFileExists(projectDir) {
		existing, loadErr := config.LoadSecrets(projectDir, password)
		if loadErr != nil {
			return fmt.Errorf("existing secrets file could not be opened with this password: %w", loadErr)
		}
		secrets = existing
	}
	secrets.Set(name, key)

	if err := secrets.Save(projectDir, password); err != nil {
		return fmt.Errorf("failed to encrypt secrets: %w", err)
	}
	fmt.Printf("Credentials saved to %s (file permissions: 0600)\n", config.SecretsPath(projectDir))
	return nil
}

// promptForPassword prompts for a password with confirmation.
func promptForPassword() (string, error) {
	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		first, err := readSecretBytes("Enter a password for the secrets file: ")
		if err != nil {
			return "", err
		}
		second, err := readSecretBytes("Confirm password: ")
		if err != nil {
			return "", err
		}

		match := bytes.Equal(first, second) && len(first) > 0
		password := string(first)
		zero(first)
		zero(second)

		if match {
			return password, nil
		}
		if attempt < maxAttempts {
			fmt.Println("Passwords do not match or are empty. Please try again.")
		}
	}
	return "", fmt.Errorf("passwords do not match after %d attempts", maxAttempts)
}

func readSecret(prompt string) (string, error) {
	b, err := readSecretBytes(prompt)
	if err != nil {
		return "", err
	}
	defer zero(b)
	return string(b), nil
}

func readSecretBytes(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println() // New line after hidden input
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return b, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
