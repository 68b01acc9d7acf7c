package main

import (
	"bufio"
	"context"
	"flag"
	"hash/fnv"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/foodcourt/internal/domain/coupon"
	"github.com/xenking/foodcourt/internal/domain/customer"
	"github.com/xenking/foodcourt/internal/domain/rule"
	"github.com/xenking/foodcourt/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 100_000
)

type options struct {
	dataDir     string
	databaseURL string
	couponID    string
	validFor    time.Duration
	expected    uint
	workers     int
}

// candidate is a customer id read from an input file. maybe is set when the
// holder filter reports the customer may already hold a voucher.
type candidate struct {
	customerID string
	maybe      bool
}

type stats struct {
	read, issued, held, unknown atomic.Int64
}

func main() {
	var opts options

	flag.StringVar(&opts.dataDir, "data-dir", "data", "directory containing customersN.gz files")
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.couponID, "coupon", "", "coupon id to issue vouchers for")
	flag.DurationVar(&opts.validFor, "valid-for", 0, "voucher lifetime; 0 keeps the coupon end date")
	flag.UintVar(&opts.expected, "expected", 1_000_000, "expected number of holders, sizes the bloom filter")
	flag.IntVar(&opts.workers, "workers", 8, "concurrent voucher writers")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.couponID == "" {
		slog.Error("coupon id is required: set --coupon")
		os.Exit(1)
	}
	if opts.workers < 1 {
		opts.workers = 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("voucher ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("voucher ingest completed successfully")
}

func run(ctx context.Context, opts options) error {
	files, err := filepath.Glob(filepath.Join(opts.dataDir, "customers*.gz"))
	if err != nil {
		return errors.Wrap(err, "list input files")
	}
	if len(files) == 0 {
		return errors.Errorf("no customers*.gz files in %s", opts.dataDir)
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	coupons := postgres.NewCouponRepository(pool)
	customers := postgres.NewCustomerRepository(pool)
	svc := coupon.NewService(coupons, coupons, customers, rule.NewEvaluator(zap.NewNop()))

	if _, err := coupons.GetByID(ctx, opts.couponID); err != nil {
		return errors.Wrapf(err, "coupon %s", opts.couponID)
	}

	slog.Info("loading current holders", slog.String("coupon", opts.couponID))

	filter, err := loadHolders(ctx, coupons, opts.couponID, opts.expected)
	if err != nil {
		return errors.Wrap(err, "load holders")
	}

	var st stats
	start := time.Now()
	if err := ingest(ctx, files, filter, opts, &st, func(ctx context.Context, c candidate) error {
		return issue(ctx, svc, coupons, customers, opts, c, &st)
	}); err != nil {
		return err
	}

	slog.Info("ingest summary",
		slog.Int("files", len(files)),
		slog.Int64("read", st.read.Load()),
		slog.Int64("issued", st.issued.Load()),
		slog.Int64("already_held", st.held.Load()),
		slog.Int64("unknown_customers", st.unknown.Load()),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// loadHolders builds a bloom filter over every customer that already holds a
// voucher for the coupon.
func loadHolders(ctx context.Context, vouchers coupon.VoucherRepository, couponID string, expected uint) (*bloom.BloomFilter, error) {
	holders, err := vouchers.ListHolders(ctx, couponID)
	if err != nil {
		return nil, err
	}
	if n := uint(len(holders)); n > expected {
		expected = n
	}
	filter := bloom.NewWithEstimates(expected, bloomFPR)
	for _, id := range holders {
		filter.AddString(id)
	}
	slog.Info("holders loaded", slog.Int("count", len(holders)))
	return filter, nil
}

// ingest streams every file concurrently into a single filtering stage and
// fans candidates out to writers. A customer id always lands on the same
// writer, so duplicates across files are checked after the first write.
func ingest(
	ctx context.Context,
	files []string,
	filter *bloom.BloomFilter,
	opts options,
	st *stats,
	write func(ctx context.Context, c candidate) error,
) error {
	g, ctx := errgroup.WithContext(ctx)

	ids := make(chan string, 1024)
	readers, rctx := errgroup.WithContext(ctx)
	for i, f := range files {
		readers.Go(func() error {
			return streamGzFile(rctx, f, func(id string) error {
				if n := st.read.Add(1); n%progressEvery == 0 {
					slog.Info("read progress", slog.Int("file", i+1), slog.Int64("customers", n))
				}
				select {
				case ids <- id:
					return nil
				case <-rctx.Done():
					return rctx.Err()
				}
			})
		})
	}
	g.Go(func() error {
		defer close(ids)
		return readers.Wait()
	})

	shards := make([]chan candidate, opts.workers)
	for i := range shards {
		shards[i] = make(chan candidate, 256)
	}

	// The filter is only touched here, so it needs no locking.
	g.Go(func() error {
		defer func() {
			for _, s := range shards {
				close(s)
			}
		}()
		for id := range ids {
			c := candidate{customerID: id, maybe: filter.TestOrAddString(id)}
			select {
			case shards[shard(id, len(shards))] <- c:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for _, s := range shards {
		g.Go(func() error {
			for c := range s {
				if err := write(ctx, c); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return g.Wait()
}

func shard(id string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(n))
}

// issue creates a voucher unless the customer already holds one or does not
// exist. Filter hits are confirmed against the database.
func issue(
	ctx context.Context,
	svc *coupon.Service,
	vouchers coupon.VoucherRepository,
	customers customer.Repository,
	opts options,
	c candidate,
	st *stats,
) error {
	if c.maybe {
		held, err := vouchers.HasVoucher(ctx, opts.couponID, c.customerID)
		if err != nil {
			return errors.Wrapf(err, "check holder %s", c.customerID)
		}
		if held {
			st.held.Add(1)
			return nil
		}
	}

	if _, err := customers.GetByID(ctx, c.customerID); err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			st.unknown.Add(1)
			return nil
		}
		return errors.Wrapf(err, "get customer %s", c.customerID)
	}

	if _, err := svc.Issue(ctx, opts.couponID, c.customerID, opts.validFor); err != nil {
		return errors.Wrapf(err, "issue voucher for %s", c.customerID)
	}
	st.issued.Add(1)
	return nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each customer
// id. Blank lines and # comments are skipped.
func streamGzFile(ctx context.Context, path string, fn func(id string) error) error {
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
		id := strings.TrimSpace(scanner.Text())
		if id == "" || strings.HasPrefix(id, "#") {
			continue
		}
		if err := fn(id); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
