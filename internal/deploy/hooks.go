package deploy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stagehand/internal/security"
	"stagehand/pkg/cmdutil"
)

// RunHooks executes the configured post-deploy commands sequentially in
// workDir. Commands run without a shell, against the executor's
// allow-list; the first failure stops the remaining hooks.
func RunHooks(ctx context.Context, runner cmdutil.Runner, log zerolog.Logger, workDir string, commands []interface{}, timeoutSeconds int) error {
	if len(commands) == 0 {
		return nil
	}

	executor := security.NewSandboxedExecutor(workDir, runner)
	if timeoutSeconds > 0 {
		executor.Timeout = time.Duration(timeoutSeconds) * time.Second
	}

	for i, raw := range commands {
		argv, err := cmdutil.ParseCommandList(raw)
		if err != nil {
			return fmt.Errorf("post-deploy command %d: %w", i+1, err)
		}

		log.Info().
			Int("step", i+1).
			Int("total", len(commands)).
			Str("command", cmdutil.FormatCommand(argv)).
			Msg("running post-deploy command")

		output, err := executor.Execute(ctx, argv)
		if err != nil {
			detail := strings.TrimSpace(string(output))
			if detail != "" {
				return fmt.Errorf("post-deploy command %d (%s): %s: %w", i+1, cmdutil.FormatCommand(argv), detail, err)
			}
			return fmt.Errorf("post-deploy command %d (%s): %w", i+1, cmdutil.FormatCommand(argv), err)
		}
	}

	log.Info().Int("count", len(commands)).Msg("post-deploy commands completed")
	return nil
}
