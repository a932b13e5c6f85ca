package utils

import (
	"testing"

	"mailsprint/config"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	config.AppConfig.EncryptionKey = "0123456789abcdef0123456789abcdef"

	secret := "smtp-password-!@#"
	encrypted, err := Encrypt(secret)
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if encrypted == secret {
		t.Fatal("ciphertext must differ from plaintext")
	}

	decrypted, err := Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt returned error: %v", err)
	}
	if decrypted != secret {
		t.Errorf("round trip mismatch: got %q, want %q", decrypted, secret)
	}
}

func TestEncryptProducesFreshCiphertext(t *testing.T) {
	config.AppConfig.EncryptionKey = "0123456789abcdef0123456789abcdef"

	a, err := Encrypt("same input")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encrypt("same input")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("expected a fresh IV per encryption")
	}
}

func TestEncryptEmptyString(t *testing.T) {
	config.AppConfig.EncryptionKey = "0123456789abcdef0123456789abcdef"

	got, err := Encrypt("")
	if err != nil || got != "" {
		t.Errorf("Encrypt(\"\") = %q, %v; want empty, nil", got, err)
	}
	got, err = Decrypt("")
	if err != nil || got != "" {
		t.Errorf("Decrypt(\"\") = %q, %v; want empty, nil", got, err)
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	config.AppConfig.EncryptionKey = "0123456789abcdef0123456789abcdef"

	if _, err := Decrypt("not-base64!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, err := Decrypt("c2hvcnQ="); err == nil {
		t.Error("expected error for truncated ciphertext")
	}
}
