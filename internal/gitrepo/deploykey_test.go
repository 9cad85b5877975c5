package gitrepo

import (
	"bytes"
	"context"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

func TestGenerateKeyPair(t *testing.T) {
	pair, err := GenerateKeyPair("stagehand-deploy")
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	block, rest := pem.Decode(pair.PrivateKey)
	if block == nil {
		t.Fatal("private key is not PEM encoded")
	}
	if len(bytes.TrimSpace(rest)) > 0 {
		t.Error("unexpected data after PEM block")
	}
	if block.Type != "OPENSSH PRIVATE KEY" {
		t.Errorf("PEM type = %q, want %q", block.Type, "OPENSSH PRIVATE KEY")
	}
	if _, err := ssh.ParsePrivateKey(pair.PrivateKey); err != nil {
		t.Errorf("private key does not parse: %v", err)
	}

	pub := string(pair.PublicKey)
	if !strings.HasPrefix(pub, "ssh-ed25519 ") {
		t.Errorf("public key = %q, want ssh-ed25519 prefix", pub)
	}
	if !strings.HasSuffix(strings.TrimSuffix(pub, "\n"), " stagehand-deploy") {
		t.Errorf("public key = %q, missing comment", pub)
	}
	if _, _, _, _, err := ssh.ParseAuthorizedKey(pair.PublicKey); err != nil {
		t.Errorf("public key does not parse as authorized key: %v", err)
	}
}

func TestGenerateKeyPair_Correspondence(t *testing.T) {
	pair, err := GenerateKeyPair("")
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	signer, err := ssh.ParsePrivateKey(pair.PrivateKey)
	if err != nil {
		t.Fatalf("parsing private key: %v", err)
	}
	parsedPub, _, _, _, err := ssh.ParseAuthorizedKey(pair.PublicKey)
	if err != nil {
		t.Fatalf("parsing public key: %v", err)
	}

	if !bytes.Equal(signer.PublicKey().Marshal(), parsedPub.Marshal()) {
		t.Error("public key does not correspond to private key")
	}
}

func TestGenerateKeyPair_Uniqueness(t *testing.T) {
	first, err := GenerateKeyPair("a")
	if err != nil {
		t.Fatalf("first GenerateKeyPair() error = %v", err)
	}
	second, err := GenerateKeyPair("a")
	if err != nil {
		t.Fatalf("second GenerateKeyPair() error = %v", err)
	}

	if bytes.Equal(first.PrivateKey, second.PrivateKey) {
		t.Error("two generated pairs share a private key")
	}
	if bytes.Equal(first.PublicKey, second.PublicKey) {
		t.Error("two generated pairs share a public key")
	}
}

func TestEnsureKeyPair(t *testing.T) {
	dir := t.TempDir()

	keyPath, pub, generated, err := EnsureKeyPair(dir, "deploy_key", "host-a")
	if err != nil {
		t.Fatalf("EnsureKeyPair() error = %v", err)
	}
	if !generated {
		t.Error("first call should generate")
	}
	if keyPath != filepath.Join(dir, "deploy_key") {
		t.Errorf("keyPath = %q", keyPath)
	}

	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatalf("private key not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("private key mode = %o, want 600", perm)
	}
	pubInfo, err := os.Stat(keyPath + ".pub")
	if err != nil {
		t.Fatalf("public key not written: %v", err)
	}
	if perm := pubInfo.Mode().Perm(); perm != 0o644 {
		t.Errorf("public key mode = %o, want 644", perm)
	}

	keyPath2, pub2, generated2, err := EnsureKeyPair(dir, "deploy_key", "host-a")
	if err != nil {
		t.Fatalf("second EnsureKeyPair() error = %v", err)
	}
	if generated2 {
		t.Error("second call must reuse the existing pair")
	}
	if keyPath2 != keyPath {
		t.Errorf("second call keyPath = %q, want %q", keyPath2, keyPath)
	}
	if !bytes.Equal(pub, pub2) {
		t.Error("second call returned a different public key")
	}
}

func TestEnsureKeyPair_MissingPublicHalf(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "deploy_key"), []byte("not a real key"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, _, _, err := EnsureKeyPair(dir, "deploy_key", "")
	if err == nil {
		t.Fatal("private key without public half should be an error")
	}
	if !strings.Contains(err.Error(), "public half") {
		t.Errorf("error %q does not explain the missing half", err)
	}
}

func TestUploadDeployKey_NoToken(t *testing.T) {
	err := UploadDeployKey(context.Background(), zerolog.Nop(), "", "git@github.com:acme/site.git", "box", []byte("ssh-ed25519 AAAA"))
	if err != nil {
		t.Fatalf("UploadDeployKey() without token should skip, got %v", err)
	}
}

func TestUploadDeployKey_BadURL(t *testing.T) {
	err := UploadDeployKey(context.Background(), zerolog.Nop(), "token", "https://evil.example.com/r.git", "box", []byte("ssh-ed25519 AAAA"))
	if err == nil {
		t.Fatal("non-GitHub URL must be rejected")
	}
}
