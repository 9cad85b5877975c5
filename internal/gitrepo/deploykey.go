package gitrepo

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-github/v57/github"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/oauth2"

	"stagehand/internal/security"
)

// KeyPair holds an ed25519 key pair in ready-to-use formats: the private
// key as OpenSSH PEM, the public key as an authorized_keys line.
type KeyPair struct {
	PrivateKey []byte
	PublicKey  []byte
}

// GenerateKeyPair generates a new ed25519 key pair. The comment, when
// non-empty, is attached to both halves.
func GenerateKeyPair(comment string) (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating ed25519 key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return nil, fmt.Errorf("marshaling private key: %w", err)
	}
	privatePEM := pem.EncodeToMemory(block)

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("deriving ssh public key: %w", err)
	}
	publicLine := ssh.MarshalAuthorizedKey(sshPub)
	if comment != "" {
		publicLine = append(bytes.TrimRight(publicLine, "\n"), []byte(" "+comment+"\n")...)
	}

	return &KeyPair{PrivateKey: privatePEM, PublicKey: publicLine}, nil
}

// EnsureKeyPair makes sure an ed25519 deploy key exists under dir as
// name/name.pub, generating one on first run. It returns the private key
// path, the public key content, and whether a new pair was created.
func EnsureKeyPair(dir, name, comment string) (string, []byte, bool, error) {
	keyPath := filepath.Join(dir, name)
	pubPath := keyPath + ".pub"

	if _, err := os.Stat(keyPath); err == nil {
		pub, err := os.ReadFile(pubPath)
		if err != nil {
			return "", nil, false, fmt.Errorf("deploy key %s exists without its public half: %w", keyPath, err)
		}
		return keyPath, pub, false, nil
	}

	pair, err := GenerateKeyPair(comment)
	if err != nil {
		return "", nil, false, err
	}

	if _, err := security.WriteSecretFile(keyPath, pair.PrivateKey); err != nil {
		return "", nil, false, err
	}
	if err := os.WriteFile(pubPath, pair.PublicKey, security.PermPublicFile); err != nil {
		return "", nil, false, fmt.Errorf("writing %s: %w", pubPath, err)
	}

	return keyPath, pair.PublicKey, true, nil
}

// UploadDeployKey registers the public key on the GitHub repository behind
// repoURL as a read-only deploy key. Without a token, or when the key is
// already registered, it logs and returns nil; a reachable API that rejects
// the key is an error.
func UploadDeployKey(ctx context.Context, log zerolog.Logger, token, repoURL, title string, publicKey []byte) error {
	if token == "" {
		log.Warn().Msg("no API token; skipping deploy key upload")
		return nil
	}

	owner, repo, err := security.ParseGitHubRepo(repoURL)
	if err != nil {
		return err
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	content := strings.TrimSpace(string(publicKey))

	keys, _, err := client.Repositories.ListKeys(ctx, owner, repo, nil)
	if err != nil {
		return fmt.Errorf("listing deploy keys for %s/%s: %w", owner, repo, err)
	}
	for _, key := range keys {
		if key.Key != nil && strings.TrimSpace(*key.Key) == content {
			log.Info().Str("repo", owner+"/"+repo).Msg("deploy key already registered")
			return nil
		}
	}

	readOnly := true
	keyReq := &github.Key{
		Title:    &title,
		Key:      &content,
		ReadOnly: &readOnly,
	}
	if _, _, err := client.Repositories.CreateKey(ctx, owner, repo, keyReq); err != nil {
		if strings.Contains(err.Error(), "key is already in use") {
			log.Warn().Str("repo", owner+"/"+repo).Msg("deploy key already in use elsewhere")
			return nil
		}
		return fmt.Errorf("creating deploy key on %s/%s: %w", owner, repo, err)
	}

	log.Info().Str("repo", owner+"/"+repo).Str("title", title).Msg("deploy key uploaded")
	return nil
}
