package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/docportal/catalog"
)

type loadtestFlags struct {
	periods     int
	events      int
	links       int
	concurrency int
	ops         int
	redisAddr   string
	prefix      string
}

func newLoadtestCmd() *cobra.Command {
	f := &loadtestFlags{}
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Seed a catalog and measure read latency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.periods <= 0 || f.events <= 0 || f.concurrency <= 0 || f.ops <= 0 {
				return fmt.Errorf("periods, events, concurrency and ops must be > 0")
			}
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().IntVar(&f.periods, "periods", 20, "periods to seed")
	cmd.Flags().IntVar(&f.events, "events", 25, "events per period")
	cmd.Flags().IntVar(&f.links, "links", 3, "links per event")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 64, "concurrent workers")
	cmd.Flags().IntVar(&f.ops, "ops", 20000, "operations per phase")
	cmd.Flags().StringVar(&f.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or an embedded redis is used")
	cmd.Flags().StringVar(&f.prefix, "prefix", "docportal:loadtest", "catalog key prefix")
	return cmd
}

func runLoadtest(ctx context.Context, out io.Writer, f *loadtestFlags) error {
	addr := f.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var client redis.UniversalClient
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start embedded redis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Fprintf(out, "using embedded redis at %s\n", addr)
	} else {
		fmt.Fprintf(out, "using redis at %s\n", addr)
	}
	client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	repo := catalog.NewRedisRepository(client, f.prefix)

	fmt.Fprintf(out, "seeding %d periods x %d events x %d links...\n", f.periods, f.events, f.links)
	startSeed := time.Now()
	eventIDs, err := seedCatalog(ctx, repo, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	listStats := runPhase(f.ops, f.concurrency, func(_ *rand.Rand) error {
		_, err := repo.ListPeriods(ctx)
		return err
	})
	detailStats := runPhase(f.ops, f.concurrency, func(r *rand.Rand) error {
		_, err := repo.GetEvent(ctx, eventIDs[r.Intn(len(eventIDs))])
		return err
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "list_periods", listStats)
	printStats(out, "event_detail", detailStats)
	return nil
}

func seedCatalog(ctx context.Context, repo catalog.Repository, f *loadtestFlags) ([]string, error) {
	eventIDs := make([]string, 0, f.periods*f.events)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for p := 0; p < f.periods; p++ {
		start := base.AddDate(0, p, 0)
		period, err := repo.CreatePeriod(ctx, catalog.PeriodInput{
			Name:      fmt.Sprintf("Period %d", p+1),
			StartDate: start.Format(catalog.DateLayout),
			EndDate:   start.AddDate(0, 1, -1).Format(catalog.DateLayout),
			IsActive:  p == f.periods-1,
		})
		if err != nil {
			return nil, fmt.Errorf("seed period: %w", err)
		}
		for e := 0; e < f.events; e++ {
			event, err := repo.CreateEvent(ctx, catalog.EventInput{
				Title:    fmt.Sprintf("Event %d.%d", p+1, e+1),
				PeriodID: period.ID,
			})
			if err != nil {
				return nil, fmt.Errorf("seed event: %w", err)
			}
			eventIDs = append(eventIDs, event.ID)
			for l := 0; l < f.links; l++ {
				if _, err := repo.CreateLink(ctx, catalog.LinkInput{
					Title:   fmt.Sprintf("Link %d", l+1),
					URL:     fmt.Sprintf("https://docs.example.com/%s/%d", event.ID, l),
					EventID: event.ID,
				}); err != nil {
					return nil, fmt.Errorf("seed link: %w", err)
				}
			}
		}
	}
	return eventIDs, nil
}

func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
