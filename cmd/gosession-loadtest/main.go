// Command gosession-loadtest drives the Redis session store with concurrent
// resolve and revoke traffic and reports latency percentiles. The revoke phase
// also checks that no token resolves once its Revoke call has returned.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goSession/session"
)

const loadtestSecret = "loadtest-secret-key-0123456789abcdef"

type seeded struct {
	token  string
	userID string
}

func main() {
	var (
		sessions    = flag.Int("sessions", 50000, "number of sessions to seed")
		users       = flag.Int("users", 1000, "number of distinct users owning them")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations in the resolve phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "gs-load", "session key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	hasher, err := session.NewHasher(loadtestSecret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hasher: %v\n", err)
		os.Exit(1)
	}
	store := session.NewStore(client, hasher, session.WithKeyPrefix(*prefix))

	fmt.Printf("seeding %d sessions for %d users...\n", *sessions, *users)
	startSeed := time.Now()
	states, err := seed(ctx, store, *sessions, *users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	resolveStats := runResolvePhase(ctx, store, states, *ops, *concurrency)
	revokeStats, violations := runRevokePhase(ctx, store, states, *concurrency)

	fmt.Println("---- results ----")
	printStats("resolve", resolveStats)
	printStats("revoke", revokeStats)
	fmt.Printf("revoked tokens still resolving: %d\n", violations)
	if violations > 0 {
		os.Exit(1)
	}
}

func seed(ctx context.Context, store *session.RedisStore, n, users int) ([]seeded, error) {
	out := make([]seeded, n)
	expires := time.Now().Add(24 * time.Hour)
	for i := range out {
		token, err := session.NewToken()
		if err != nil {
			return nil, err
		}
		userID := fmt.Sprintf("user-%d", i%users)
		err = store.Insert(ctx, token, session.InsertParams{
			UserID:    userID,
			ExpiresAt: expires,
			UserAgent: "gosession-loadtest",
		})
		if err != nil {
			return nil, err
		}
		out[i] = seeded{token: token, userID: userID}
	}
	return out, nil
}

func runResolvePhase(ctx context.Context, store *session.RedisStore, states []seeded, ops, concurrency int) phaseStats {
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
				st := states[r.Intn(len(states))]
				t0 := time.Now()
				userID, ok, err := store.GetUserID(ctx, st.token)
				d := time.Since(t0)
				if err != nil || !ok || userID != st.userID {
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

// runRevokePhase revokes every seeded token once while readers keep resolving
// random tokens. A reader that observes a token as live after its revoke
// completed counts as a violation.
func runRevokePhase(ctx context.Context, store *session.RedisStore, states []seeded, concurrency int) (phaseStats, int64) {
	var (
		wg         sync.WaitGroup
		cursor     int64
		failures   int64
		violations int64
		latencies  = make([]time.Duration, 0, len(states))
		mu         sync.Mutex
		revoked    = make([]atomic.Bool, len(states))
		stop       = make(chan struct{})
		readers    sync.WaitGroup
	)

	readerCount := concurrency / 4
	if readerCount == 0 {
		readerCount = 1
	}
	for w := 0; w < readerCount; w++ {
		readers.Add(1)
		go func(worker int) {
			defer readers.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*104729))
			for {
				select {
				case <-stop:
					return
				default:
				}
				idx := r.Intn(len(states))
				wasRevoked := revoked[idx].Load()
				_, ok, err := store.GetUserID(ctx, states[idx].token)
				if err == nil && ok && wasRevoked {
					atomic.AddInt64(&violations, 1)
				}
			}
		}(w)
	}

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(states) {
					return
				}
				t0 := time.Now()
				ok, err := store.Revoke(ctx, states[i].token)
				d := time.Since(t0)
				if err != nil || !ok {
					atomic.AddInt64(&failures, 1)
				}
				if err == nil {
					revoked[i].Store(true)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	close(stop)
	readers.Wait()

	return computeStats(total, latencies, failures), atomic.LoadInt64(&violations)
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

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
