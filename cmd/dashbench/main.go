package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alexflint/go-arg"
	"go.uber.org/zap"

	"github.com/llxisdsh/dash"
	"github.com/llxisdsh/dash/store"
)

type Args struct {
	Goroutines int           `arg:"--goroutines" default:"8" help:"goroutines contending on one bucket lock"`
	Iterations int           `arg:"--iterations" default:"1000" help:"lock/unlock rounds per goroutine"`
	Keys       int           `arg:"--keys" default:"100000" help:"keys written with a TTL to the reactive store"`
	TTL        time.Duration `arg:"--ttl" default:"1s" help:"TTL of the reactive store keys"`
	Debug      bool          `arg:"--debug" default:"false"`
}

func main() {
	var args Args
	arg.MustParse(&args)

	logger, err := newLogger(args.Debug)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := run(context.Background(), args); err != nil {
		logger.Fatal("dashbench failed", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, args Args) error {
	if err := contend(args.Goroutines, args.Iterations); err != nil {
		return fmt.Errorf("contended lock: %w", err)
	}
	if err := fill(); err != nil {
		return fmt.Errorf("fill bucket: %w", err)
	}
	if err := expireAll(ctx, args.Keys, args.TTL); err != nil {
		return fmt.Errorf("ttl expiry: %w", err)
	}
	return nil
}

// contend hammers a single bucket lock and checks that every release was
// counted exactly once.
func contend(goroutines, iterations int) error {
	b := dash.NewBucket[string]()
	start := time.Now()

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				b.Lock()
				b.Unlock()
			}
		}()
	}
	wg.Wait()

	want := uint32(goroutines*iterations) & (1<<31 - 1)
	zap.L().Info("contended lock done",
		zap.Int("goroutines", goroutines),
		zap.Int("iterations", iterations),
		zap.Uint32("version", b.Version()),
		zap.Duration("took", time.Since(start)))
	if got := b.Version(); got != want || b.IsLocked() {
		return fmt.Errorf("version %d locked=%v, want version %d unlocked", got, b.IsLocked(), want)
	}
	return nil
}

// fill inserts hashed keys until the bucket reports it is full, then reads
// every key back through the optimistic path.
func fill() error {
	b := dash.NewBucket[string]()
	var keys []string
	for i := 0; ; i++ {
		key := fmt.Sprintf("key%d", i)
		fp := dash.Fingerprint(dash.HashString(key))

		b.Lock()
		slot, err := b.Insert(key, []byte(key), fp, false)
		b.Unlock()
		if errors.Is(err, dash.ErrBucketFull) {
			break
		}
		if err != nil {
			return err
		}
		zap.L().Debug("inserted", zap.String("key", key), zap.Int("slot", slot), zap.Uint8("fingerprint", fp))
		keys = append(keys, key)
	}

	for _, key := range keys {
		v, ok := b.Get(key, dash.Fingerprint(dash.HashString(key)))
		if !ok || string(v) != key {
			return fmt.Errorf("key %q not readable after fill", key)
		}
	}
	zap.L().Info("bucket filled", zap.Int("pairs", len(keys)), zap.Stringer("bucket", b))
	if len(keys) != dash.SlotsPerBucket {
		return fmt.Errorf("filled %d slots, want %d", len(keys), dash.SlotsPerBucket)
	}
	return nil
}

// expireAll writes n keys with the same TTL and waits for every one of
// them to be broadcast as expired.
func expireAll(ctx context.Context, n int, ttl time.Duration) error {
	s := store.New(store.WithBufferSize(2 * n))
	defer s.Close()
	sub := s.Subscribe()
	defer sub.Close()

	for i := 0; i < n; i++ {
		s.SetWithTTL(fmt.Sprintf("key%d", i), store.Text(fmt.Sprintf("value%d", i)), ttl)
	}

	ctx, cancel := context.WithTimeout(ctx, ttl+5*time.Second)
	defer cancel()
	expired := 0
	for expired < n {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d of %d keys expired: %w", expired, n, ctx.Err())
		case ev := <-sub.C():
			if ev.Value == store.Expired {
				expired++
			}
		}
	}
	if l := s.Len(); l != 0 {
		return fmt.Errorf("%d keys left after expiry", l)
	}
	zap.L().Info("all keys expired", zap.Int("keys", n), zap.Duration("ttl", ttl), zap.Uint64("dropped", sub.Dropped()))
	return nil
}
