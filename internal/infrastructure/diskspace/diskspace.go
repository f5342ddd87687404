// Package diskspace checks that a destination can take a backup before any
// archiving work starts.
package diskspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/semmidev/keepsake/internal/domain"
)

// Free returns the bytes available to unprivileged users at path.
func Free(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("disk usage for %s: %w", path, err)
	}
	return usage.Free, nil
}

// CheckWritable creates dir if needed and proves a file can be created in it.
func CheckWritable(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return domain.PreconditionError("create destination", err)
	}
	probe, err := os.CreateTemp(dir, ".keepsake-probe-*")
	if err != nil {
		return domain.PreconditionError("destination not writable", err)
	}
	name := probe.Name()
	probe.Close()
	if err := os.Remove(name); err != nil {
		return domain.PreconditionError("remove probe "+filepath.Base(name), err)
	}
	return nil
}

// CheckSpace fails when dir has less than need plus reserve bytes free.
func CheckSpace(ctx context.Context, dir string, need, reserve uint64) error {
	free, err := Free(ctx, dir)
	if err != nil {
		return domain.PreconditionError("check free space", err)
	}
	if free < need+reserve {
		return domain.PreconditionError("check free space", fmt.Errorf(
			"insufficient space in %s: %s free, need %s plus %s reserve",
			dir, humanize.IBytes(free), humanize.IBytes(need), humanize.IBytes(reserve)))
	}
	return nil
}
