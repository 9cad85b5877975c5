package bootstrap

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"stagehand/internal/config"
	"stagehand/pkg/cmdutil"
	"stagehand/pkg/fileutil"
)

const diskTimeout = 5 * time.Minute

// provisionDisks is the storage stage: partition, format, and mount each
// configured data disk. A spec whose block device is absent on this host
// is skipped with a log line, never an error — the same configuration is
// shared across hosts with different disk layouts.
func (r *Runner) provisionDisks(ctx context.Context) error {
	for _, disk := range r.cfg.Disks {
		if _, err := os.Stat(disk.Device); err != nil {
			r.log.Warn().
				Str("device", disk.Device).
				Str("mount_point", disk.MountPoint).
				Msg("block device not present; skipping disk")
			continue
		}
		if err := r.provisionDisk(ctx, disk); err != nil {
			return err
		}
	}
	return nil
}

// provisionDisk converges one disk: a partition table and partition when
// the partition node is missing, a filesystem when the partition has
// none, an fstab entry, and finally the mount itself. Every step checks
// before acting, so a converged disk is untouched.
func (r *Runner) provisionDisk(ctx context.Context, disk config.DiskSpec) error {
	log := r.log.With().Str("device", disk.Device).Str("mount_point", disk.MountPoint).Logger()
	opts := cmdutil.ExecOptions{Timeout: diskTimeout}

	if _, err := os.Stat(disk.Partition); err != nil {
		log.Info().Str("partition", disk.Partition).Msg("partitioning disk")
		if result, err := r.runner.Run(ctx, opts, []string{"parted", "-s", disk.Device, "mklabel", "gpt"}); err != nil {
			return fmt.Errorf("labeling %s: %s: %w", disk.Device, strings.TrimSpace(string(result.OutputOrEmpty())), err)
		}
		if result, err := r.runner.Run(ctx, opts, []string{"parted", "-s", disk.Device, "mkpart", "primary", "ext4", "0%", "100%"}); err != nil {
			return fmt.Errorf("partitioning %s: %s: %w", disk.Device, strings.TrimSpace(string(result.OutputOrEmpty())), err)
		}
		// Wait for the kernel to publish the new partition node.
		if _, err := r.runner.Run(ctx, opts, []string{"udevadm", "settle"}); err != nil {
			log.Warn().Err(err).Msg("udevadm settle failed; continuing")
		}
	}

	if result, err := r.runner.Run(ctx, opts, []string{"blkid", disk.Partition}); err != nil || !result.OK() {
		log.Info().Str("partition", disk.Partition).Msg("creating filesystem")
		if result, err := r.runner.Run(ctx, opts, []string{"mkfs.ext4", disk.Partition}); err != nil {
			return fmt.Errorf("formatting %s: %s: %w", disk.Partition, strings.TrimSpace(string(result.OutputOrEmpty())), err)
		}
	} else {
		log.Debug().Str("partition", disk.Partition).Msg("filesystem already present")
	}

	entry := fmt.Sprintf("%s %s ext4 defaults,nofail 0 2", disk.Partition, disk.MountPoint)
	changed, err := fileutil.EnsureLine(r.fstabFile, disk.Partition+" ", entry, 0o644)
	if err != nil {
		return err
	}
	if changed {
		log.Info().Msg("recorded fstab entry")
	}

	if err := os.MkdirAll(disk.MountPoint, 0o755); err != nil {
		return fmt.Errorf("creating mount point %s: %w", disk.MountPoint, err)
	}
	if result, err := r.runner.Run(ctx, opts, []string{"mountpoint", "-q", disk.MountPoint}); err == nil && result.OK() {
		log.Debug().Msg("already mounted")
		return nil
	}
	if result, err := r.runner.Run(ctx, opts, []string{"mount", disk.Partition, disk.MountPoint}); err != nil {
		return fmt.Errorf("mounting %s on %s: %s: %w", disk.Partition, disk.MountPoint, strings.TrimSpace(string(result.OutputOrEmpty())), err)
	}
	log.Info().Msg("disk mounted")
	return nil
}
