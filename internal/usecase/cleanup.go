package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/semmidev/keepsake/internal/domain"
)

// Cleanup applies the retention window to every target. Files are grouped
// into backup sets (archive, digest, notes) that expire together, and the
// newest set on a target is never removed.
type Cleanup struct {
	targets       []UploadTarget
	prefix        string
	logger        domain.Logger
	retentionDays int
	now           func() time.Time
}

// PruneReport is what pruning did to one target.
type PruneReport struct {
	Target  string
	Expired []string
	Deleted int
	Failed  int
}

func NewCleanup(targets []UploadTarget, prefix string, logger domain.Logger, retentionDays int) *Cleanup {
	if logger == nil {
		logger = domain.NopLogger()
	}
	return &Cleanup{
		targets:       targets,
		prefix:        prefix,
		logger:        logger,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

// Execute prunes all targets concurrently. A target that cannot be listed
// is reported in the returned error; the others are still pruned.
func (uc *Cleanup) Execute(ctx context.Context) ([]PruneReport, error) {
	if uc.retentionDays <= 0 {
		uc.logger.Infof("Retention disabled, nothing to prune")
		return nil, nil
	}
	cutoff := uc.now().AddDate(0, 0, -uc.retentionDays)
	uc.logger.Infof("Pruning backups older than %s (%d days)", cutoff.Format(time.DateOnly), uc.retentionDays)

	reports := make([]PruneReport, len(uc.targets))
	errs := make([]error, len(uc.targets))

	var g errgroup.Group
	for i, target := range uc.targets {
		g.Go(func() error {
			reports[i], errs[i] = uc.prune(ctx, target, cutoff)
			return nil
		})
	}
	_ = g.Wait()

	var deleted int
	for _, r := range reports {
		deleted += r.Deleted
	}
	uc.logger.Infof("Pruning finished, %d file(s) removed", deleted)

	if err := errors.Join(errs...); err != nil {
		return reports, domain.IOError("prune", err)
	}
	return reports, nil
}

func (uc *Cleanup) prune(ctx context.Context, target UploadTarget, cutoff time.Time) (PruneReport, error) {
	report := PruneReport{Target: target.Name}

	names, err := target.Storage.List(ctx)
	if err != nil {
		uc.logger.Errorf("Cannot list %s: %v", target.Name, err)
		return report, fmt.Errorf("%s: %w", target.Name, err)
	}
	sets := uc.group(names)
	if len(sets) == 0 {
		return report, nil
	}

	// Sets without a readable stamp fall back to the target's own notion of age.
	var aged map[string]bool
	for _, s := range sets {
		if s.stamp.IsZero() {
			aged = uc.agedByStorage(ctx, target, cutoff)
			break
		}
	}

	newest := sets[len(sets)-1].base
	for _, s := range sets {
		if s.base == newest {
			continue
		}
		if !s.expired(cutoff, aged) {
			continue
		}
		report.Expired = append(report.Expired, s.base)
		for _, name := range s.files {
			if err := target.Storage.Delete(ctx, name); err != nil {
				uc.logger.Errorf("Failed to delete %s from %s: %v", name, target.Name, err)
				report.Failed++
				continue
			}
			uc.logger.Infof("Deleted %s from %s", name, target.Name)
			report.Deleted++
		}
	}

	uc.logger.Infof("%s: %d expired set(s), %d file(s) deleted", target.Name, len(report.Expired), report.Deleted)
	return report, nil
}

func (uc *Cleanup) agedByStorage(ctx context.Context, target UploadTarget, cutoff time.Time) map[string]bool {
	old, err := target.Storage.GetOldFiles(ctx, cutoff)
	if err != nil {
		uc.logger.Warnf("%s cannot report file ages, unstamped backups are kept: %v", target.Name, err)
		return nil
	}
	aged := make(map[string]bool, len(old))
	for _, name := range old {
		aged[name] = true
	}
	return aged
}

// backupSet is every file on a target belonging to one run.
type backupSet struct {
	base  string
	stamp time.Time
	files []string
}

// expired reports whether the set is past cutoff. Unstamped sets expire only
// when the target reports all of their files as old.
func (s backupSet) expired(cutoff time.Time, aged map[string]bool) bool {
	if !s.stamp.IsZero() {
		return s.stamp.Before(cutoff)
	}
	for _, name := range s.files {
		if !aged[name] {
			return false
		}
	}
	return true
}

// group collects prefixed names into sets ordered oldest first.
func (uc *Cleanup) group(names []string) []backupSet {
	byBase := make(map[string]*backupSet)
	for _, name := range names {
		if !strings.HasPrefix(name, uc.prefix+"_") {
			continue
		}
		base := baseName(name)
		s, ok := byBase[base]
		if !ok {
			s = &backupSet{base: base}
			if ts, err := extractTimestamp(base); err == nil {
				s.stamp = ts
			}
			byBase[base] = s
		}
		s.files = append(s.files, name)
	}

	sets := make([]backupSet, 0, len(byBase))
	for _, s := range byBase {
		sort.Strings(s.files)
		sets = append(sets, *s)
	}
	sort.Slice(sets, func(i, j int) bool {
		if !sets[i].stamp.Equal(sets[j].stamp) {
			return sets[i].stamp.Before(sets[j].stamp)
		}
		return sets[i].base < sets[j].base
	})
	return sets
}

// baseName strips every artifact suffix a run may produce.
func baseName(name string) string {
	for _, ext := range []string{notesExt, ".sha256", encryptedExt, archiveExt} {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

var stampPattern = regexp.MustCompile(`(\d{8})_(\d{6})`)

func extractTimestamp(filename string) (time.Time, error) {
	matches := stampPattern.FindStringSubmatch(filename)
	if len(matches) < 3 {
		return time.Time{}, fmt.Errorf("no timestamp in %q", filename)
	}
	return time.ParseInLocation(stampLayout, matches[1]+"_"+matches[2], time.Local)
}
