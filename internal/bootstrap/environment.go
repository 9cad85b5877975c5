package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"stagehand/internal/security"
	"stagehand/pkg/cmdutil"
	"stagehand/pkg/fileutil"
)

// Secret file names under the configured secrets directory.
const (
	apiTokenFile = "api_token"
	tlsCertFile  = "tls_cert.pem"
	tlsKeyFile   = "tls_key.pem"
)

const localeGenTimeout = 2 * time.Minute

// prepareEnvironment is the first stage: verify privilege, persist the
// locale, and write secret material to root-only files. The privilege
// check is the one unconditionally fatal precondition of the whole run.
func (r *Runner) prepareEnvironment(ctx context.Context) error {
	if err := CheckPrivilege(r.euid()); err != nil {
		return err
	}
	if err := r.ensureLocale(ctx); err != nil {
		return err
	}
	return r.writeSecrets()
}

// CheckPrivilege rejects runs without administrative privilege. Package
// installation, firewall changes, and service management all need root.
func CheckPrivilege(euid int) error {
	if euid != 0 {
		return fmt.Errorf("administrative privilege required (running as uid %d)", euid)
	}
	return nil
}

// ensureLocale persists the configured locale so it survives reboots and
// regenerates locale data when the declaration changed. The file write
// replaces an existing LANG line in place rather than appending a
// duplicate.
func (r *Runner) ensureLocale(ctx context.Context) error {
	if r.cfg.Locale == "" {
		return nil
	}

	changed, err := fileutil.EnsureLine(r.localeFile, "LANG=", "LANG="+r.cfg.Locale, 0o644)
	if err != nil {
		return err
	}
	if !changed {
		r.log.Debug().Str("locale", r.cfg.Locale).Msg("locale already declared")
		return nil
	}

	r.log.Info().Str("locale", r.cfg.Locale).Msg("declared locale")
	opts := cmdutil.ExecOptions{Timeout: localeGenTimeout}
	if result, err := r.runner.Run(ctx, opts, []string{"locale-gen", r.cfg.Locale}); err != nil {
		return fmt.Errorf("generating locale %s: %s: %w", r.cfg.Locale, strings.TrimSpace(string(result.OutputOrEmpty())), err)
	}
	return nil
}

// writeSecrets places the API token and optional TLS material into
// root-only files before any stage that might need them. A changed value
// replaces the file; an unchanged one is left alone.
func (r *Runner) writeSecrets() error {
	if r.cfg.APIToken != "" {
		path := filepath.Join(r.cfg.SecretsDir, apiTokenFile)
		written, err := security.WriteSecretFile(path, []byte(r.cfg.APIToken+"\n"))
		if err != nil {
			return err
		}
		if written {
			r.log.Info().Str("path", path).Str("token", security.Redact(r.cfg.APIToken)).Msg("wrote API token")
		}
	}

	pems := []struct {
		name string
		data string
	}{
		{tlsCertFile, r.cfg.TLSCert},
		{tlsKeyFile, r.cfg.TLSKey},
	}
	for _, p := range pems {
		if p.data == "" {
			continue
		}
		if err := security.ValidatePEM([]byte(p.data)); err != nil {
			return fmt.Errorf("secret %s: %w", p.name, err)
		}
		path := filepath.Join(r.cfg.SecretsDir, p.name)
		written, err := security.WriteSecretFile(path, []byte(p.data))
		if err != nil {
			return err
		}
		if written {
			r.log.Info().Str("path", path).Msg("wrote TLS material")
		}
	}
	return nil
}
