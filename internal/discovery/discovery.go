// Package discovery scans well-known home-directory locations for backup
// candidates.
package discovery

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/semmidev/keepsake/internal/domain"
)

const statWorkers = 8

type Discoverer struct {
	home      string
	locations []Location
	logger    domain.Logger
}

type Option func(*Discoverer)

// WithLocations replaces the built-in location table.
func WithLocations(locations []Location) Option {
	return func(d *Discoverer) {
		d.locations = locations
	}
}

func WithLogger(logger domain.Logger) Option {
	return func(d *Discoverer) {
		d.logger = logger
	}
}

func New(home string, opts ...Option) *Discoverer {
	d := &Discoverer{
		home:      home,
		locations: knownLocations,
		logger:    domain.NopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover returns the candidates that exist, in table order. A location
// that cannot be inspected is logged and skipped. Sizes are best-effort.
func (d *Discoverer) Discover(ctx context.Context, includeSizes bool) ([]domain.Candidate, error) {
	slots := make([]*domain.Candidate, len(d.locations))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(statWorkers)

	for i, loc := range d.locations {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			c, err := d.inspect(loc, includeSizes)
			if err != nil {
				d.logger.Warnf("Skipping %s: %v", loc.Name, domain.DiscoveryError("stat "+loc.Path, err))
				return nil
			}
			slots[i] = c
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]domain.Candidate, 0, len(slots))
	for _, c := range slots {
		if c != nil {
			candidates = append(candidates, *c)
		}
	}

	d.logger.Debugf("Discovery found %d of %d known locations", len(candidates), len(d.locations))
	return candidates, nil
}

// inspect returns nil, nil when the location does not exist.
func (d *Discoverer) inspect(loc Location, includeSizes bool) (*domain.Candidate, error) {
	path := filepath.Join(d.home, loc.Path)

	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c := &domain.Candidate{
		Name:        loc.Name,
		Description: loc.Description,
		Category:    loc.Category,
		Path:        path,
		IsDir:       info.IsDir(),
	}

	if includeSizes {
		if info.IsDir() {
			c.SizeBytes = SizeOf(path)
		} else {
			c.SizeBytes = info.Size()
		}
	}

	return c, nil
}

// SizeOf returns the recursive size of path. Unreadable entries count as 0.
func SizeOf(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil {
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if entry.Type().IsRegular() {
			if info, err := entry.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
