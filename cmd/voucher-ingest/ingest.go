package main

import (
	"bufio"
	"context"
	"math/bits"
	"os"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minCodeLen    = 8
	maxCodeLen    = 12
	maxFiles      = 64
	progressEvery = 10_000_000
)

// scanner finds voucher codes shared by several partner exports. Every
// export is a gzip file with one code per line.
type scanner struct {
	lg       *zap.Logger
	capacity uint
	fpr      float64
	minFiles int
}

func validCode(code string) bool {
	return len(code) >= minCodeLen && len(code) <= maxCodeLen
}

// Shared returns the sorted codes that occur in at least minFiles of files.
//
// The first pass builds a bloom filter per file. The second pass re-reads
// each file and records, for every code that another file's filter may
// contain, the bit of the file it was actually read from. Bits are only ever
// set by real occurrences, so filter false positives never promote a code.
func (s *scanner) Shared(ctx context.Context, files []string) ([]string, error) {
	if len(files) < 2 {
		return nil, errors.Errorf("need at least 2 files, got %d", len(files))
	}
	if len(files) > maxFiles {
		return nil, errors.Errorf("at most %d files supported, got %d", maxFiles, len(files))
	}

	s.lg.Info("Building bloom filters", zap.Int("files", len(files)))
	filters, err := s.buildFilters(ctx, files)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	s.lg.Info("Collecting candidates")
	masks, err := s.collect(ctx, files, filters)
	if err != nil {
		return nil, errors.Wrap(err, "collect candidates")
	}

	return merge(masks, s.minFiles), nil
}

func (s *scanner) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(s.capacity, s.fpr)
			var count uint64
			err := streamGzFile(ctx, path, func(code string) {
				if !validCode(code) {
					return
				}
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					s.lg.Info("Filter progress", zap.String("file", path), zap.Uint64("codes", count))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "filter %s", path)
			}
			s.lg.Info("Filter built", zap.String("file", path), zap.Uint64("codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func (s *scanner) collect(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]map[string]uint64, error) {
	masks := make([]map[string]uint64, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			candidates := make(map[string]uint64)
			bit := uint64(1) << uint(i)
			err := streamGzFile(ctx, path, func(code string) {
				if !validCode(code) {
					return
				}
				for j, f := range filters {
					if j != i && f.TestString(code) {
						candidates[code] |= bit
						return
					}
				}
			})
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			s.lg.Info("File scanned", zap.String("file", path), zap.Int("candidates", len(candidates)))
			masks[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return masks, nil
}

// merge ORs the per-file masks and keeps codes seen in at least minFiles files.
func merge(masks []map[string]uint64, minFiles int) []string {
	merged := make(map[string]uint64)
	for _, m := range masks {
		for code, mask := range m {
			merged[code] |= mask
		}
	}

	var shared []string
	for code, mask := range merged {
		if bits.OnesCount64(mask) >= minFiles {
			shared = append(shared, code)
		}
	}
	slices.Sort(shared)
	return shared
}

// streamGzFile calls fn for every line of the gzip-compressed file at path.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "gzip reader")
	}
	defer func() { _ = gz.Close() }()

	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return errors.Wrap(err, "read lines")
	}
	return nil
}
