// Command coupon-ingest bulk-imports coupon names from gzipped name corpora
// (couponbaseN.gz, one candidate name per line). A name is considered valid
// when it appears in at least two of the files; valid names become coupons
// with a preconfigured rule set.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/couponlab/waitroom/internal/domain/coupon"
	"github.com/couponlab/waitroom/internal/repository"
)

const (
	bloomCapacity = 120_000_000
	bloomFPR      = 0.001
	numFiles      = 3
	progressEvery = 10_000_000
	minNameLen    = 8
	maxNameLen    = 10
)

// namedParams maps well-known coupon names to their rule configuration.
// Anything else gets defaultParams.
var namedParams = map[string]string{
	"HALFPRICE":  `{"pricing":{"percent":-50}}`,
	"QUARTEROFF": `{"pricing":{"percent":-25}}`,
	"TENGRAND":   `{"pricing":{"amount":-10000}}`,
	"VIPLOUNGE":  `{"queuing":{"vip":1}}`,
	"OPENDOORS":  `{"queuing":{"reopen":true}}`,
	"REGULARS":   `{"pricing":{"frequenter_percent":-20}}`,
}

const defaultParams = `{"pricing":{"percent":-10}}`

// fileResult holds candidate names found in a single file during pass 2.
type fileResult struct {
	candidates map[string]uint
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing couponbaseN.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files := make([]string, numFiles)
	for i := range numFiles {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("couponbase%d.gz", i+1))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	// Pass 1: build one bloom filter per file, concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("files", numFiles))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: find names appearing in 2+ files.
	slog.Info("pass 2: finding valid names")

	validNames, err := findValidNames(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find valid names")
	}

	slog.Info("valid names found", slog.Int("count", len(validNames)))

	if len(validNames) == 0 {
		slog.Info("no valid names to insert")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writeCoupons(ctx, repository.NewCouponRepository(pool), validNames); err != nil {
		return errors.Wrap(err, "write coupons to database")
	}

	return nil
}

func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFile(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFile(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(name string) {
			if len(name) >= minNameLen && len(name) <= maxNameLen {
				filter.AddString(name)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress",
						slog.Int("file", idx+1),
						slog.Uint64("names", count),
					)
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for file %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_names", count),
		)

		filters[idx] = filter
		return nil
	}
}

// findValidNames re-streams each file and checks names against the OTHER
// files' bloom filters. A name is valid when it appears in 2 or more files.
func findValidNames(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]string, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(findCandidatesInFile(ctx, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge per-file bitmasks.
	merged := make(map[string]uint)
	for _, r := range results {
		for name, mask := range r.candidates {
			merged[name] |= mask
		}
	}

	var valid []string
	for name, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			valid = append(valid, name)
		}
	}

	return valid, nil
}

func findCandidatesInFile(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []fileResult,
) func() error {
	return func() error {
		candidates := make(map[string]uint)
		fileBit := uint(1) << uint(idx)
		var count uint64

		if err := streamGzFile(ctx, path, func(name string) {
			if len(name) < minNameLen || len(name) > maxNameLen {
				return
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress",
					slog.Int("file", idx+1),
					slog.Uint64("names", count),
				)
			}

			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(name) {
					candidates[name] |= fileBit
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan file %d for candidates", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_names", count),
			slog.Int("candidates", len(candidates)),
		)

		results[idx] = fileResult{candidates: candidates}
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(name string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// writeCoupons inserts all valid names as coupons, skipping existing ones.
func writeCoupons(ctx context.Context, repo *repository.CouponRepository, names []string) error {
	slog.Info("writing coupons to database", slog.Int("count", len(names)))

	written := 0
	for i, name := range names {
		raw, ok := namedParams[name]
		if !ok {
			raw = defaultParams
		}
		params, err := coupon.ParseParams([]byte(raw))
		if err != nil {
			return errors.Wrapf(err, "parse params for %s", name)
		}

		err = repo.Create(ctx, &coupon.Coupon{Name: name, Params: params})
		if err != nil && !errors.Is(err, coupon.ErrDuplicateName) {
			return errors.Wrapf(err, "insert coupon %s", name)
		}
		if err == nil {
			written++
		}

		if (i+1)%100 == 0 || i+1 == len(names) {
			slog.Info("write progress", slog.Int("processed", i+1), slog.Int("written", written))
		}
	}

	return nil
}
