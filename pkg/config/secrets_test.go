package config

import (
	"errors"
	"os"
	"testing"
)

func TestEncryptDecryptSecretsRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()

	password := "test-password-12345"
	secrets := map[string]string{
		"DEEPSEEK_API_KEY": "sk-test123456789",
		"OTHER_TOKEN":      "tok-abc",
	}

	if err := EncryptSecretsFile(tmpDir, password, secrets); err != nil {
		t.Fatalf("Failed to encrypt secrets: %v", err)
	}

	if !SecretsFileExists(tmpDir) {
		t.Fatalf("Secrets file was not created")
	}

	info, err := os.Stat(SecretsPath(tmpDir))
	if err != nil {
		t.Fatalf("Failed to stat secrets file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("Expected file permissions 0600, got %04o", info.Mode().Perm())
	}

	decrypted, err := DecryptSecretsFile(tmpDir, password)
	if err != nil {
		t.Fatalf("Failed to decrypt secrets: %v", err)
	}
	if len(decrypted) != len(secrets) {
		t.Errorf("Expected %d secrets, got %d", len(secrets), len(decrypted))
	}
	for key, expected := range secrets {
		if actual, ok := decrypted[key]; !ok {
			t.Errorf("Secret %s not found in decrypted data", key)
		} else if actual != expected {
			t.Errorf("Secret %s: expected %q, got %q", key, expected, actual)
		}
	}
}

func TestDecryptWithWrongPassword(t *testing.T) {
	tmpDir := t.TempDir()

	if err := EncryptSecretsFile(tmpDir, "correct-password", map[string]string{"K": "V"}); err != nil {
		t.Fatalf("Failed to encrypt secrets: %v", err)
	}

	if _, err := DecryptSecretsFile(tmpDir, "wrong-password"); err == nil {
		t.Fatal("Expected decryption to fail with wrong password")
	}
}

func TestEncryptRejectsEmptyPassword(t *testing.T) {
	if err := EncryptSecretsFile(t.TempDir(), "", map[string]string{"K": "V"}); err == nil {
		t.Fatal("Expected error for empty password")
	}
}

func TestDecryptCorruptedFile(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(tmpDir+"/"+secretsDirName, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(SecretsPath(tmpDir), []byte("short"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := DecryptSecretsFile(tmpDir, "any"); err == nil {
		t.Fatal("Expected error for corrupted file")
	}
}

func TestDecryptFixesPermissions(t *testing.T) {
	tmpDir := t.TempDir()
	if err := EncryptSecretsFile(tmpDir, "pw", map[string]string{"K": "V"}); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(SecretsPath(tmpDir), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := DecryptSecretsFile(tmpDir, "pw"); err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}

	info, err := os.Stat(SecretsPath(tmpDir))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("Expected permissions to be corrected to 0600, got %04o", info.Mode().Perm())
	}
}

func TestDecryptMissingFile(t *testing.T) {
	if SecretsFileExists(t.TempDir()) {
		t.Fatal("Expected no secrets file in empty dir")
	}
	if _, err := DecryptSecretsFile(t.TempDir(), "pw"); err == nil {
		t.Fatal("Expected error for missing file")
	}
}

func TestSecretsPrecedence(t *testing.T) {
	t.Setenv("LLMDIALOG_TEST_SECRET", "from-env")
	t.Setenv("LLMDIALOG_TEST_ENV_ONLY", "env-only")

	s := NewSecrets(map[string]string{"LLMDIALOG_TEST_SECRET": "from-file"})

	if got, err := s.Get("LLMDIALOG_TEST_SECRET"); err != nil || got != "from-file" {
		t.Errorf("Get = %q, %v; want from-file", got, err)
	}
	if got, err := s.Get("LLMDIALOG_TEST_ENV_ONLY"); err != nil || got != "env-only" {
		t.Errorf("Get = %q, %v; want env-only", got, err)
	}

	s.Delete("LLMDIALOG_TEST_SECRET")
	if got, _ := s.Get("LLMDIALOG_TEST_SECRET"); got != "from-env" {
		t.Errorf("after Delete, Get = %q; want from-env", got)
	}

	_, err := s.Get("LLMDIALOG_TEST_MISSING")
	if !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("expected ErrSecretNotFound, got %v", err)
	}
}

func TestNilSecretsFallsBackToEnv(t *testing.T) {
	t.Setenv("LLMDIALOG_TEST_NIL", "value")

	var s *Secrets
	if got, err := s.Get("LLMDIALOG_TEST_NIL"); err != nil || got != "value" {
		t.Errorf("Get = %q, %v; want value", got, err)
	}
}

func TestSecretsSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	var s Secrets
	s.Set("B", "2")
	s.Set("A", "1")
	if names := s.Names(); len(names) != 2 || names[0] != "A" || names[1] != "B" {
		t.Errorf("Names = %v; want [A B]", names)
	}

	if err := s.Save(tmpDir, "pw"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadSecrets(tmpDir, "pw")
	if err != nil {
		t.Fatalf("LoadSecrets failed: %v", err)
	}
	if got, _ := loaded.Get("A"); got != "1" {
		t.Errorf("loaded A = %q; want 1", got)
	}
}

func TestAPIKey(t *testing.T) {
	t.Setenv(DefaultAPIKeyEnv, "")

	cfg := Default()
	s := NewSecrets(map[string]string{DefaultAPIKeyEnv: "sk-secret"})
	key, err := s.APIKey(&cfg)
	if err != nil || key != "sk-secret" {
		t.Errorf("APIKey = %q, %v; want sk-secret", key, err)
	}

	cfg.Model.APIKeyEnv = "LLMDIALOG_TEST_CUSTOM_KEY"
	t.Setenv("LLMDIALOG_TEST_CUSTOM_KEY", "sk-custom")
	key, err = NewSecrets(nil).APIKey(&cfg)
	if err != nil || key != "sk-custom" {
		t.Errorf("APIKey = %q, %v; want sk-custom", key, err)
	}

	cfg.Model.APIKeyEnv = "LLMDIALOG_TEST_ABSENT_KEY"
	if _, err := NewSecrets(nil).APIKey(&cfg); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("expected ErrSecretNotFound, got %v", err)
	}
}
