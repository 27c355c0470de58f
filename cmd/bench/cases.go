// README: Benchmark cases; HTTP contract checks per flow, DB and Redis reachability, and throughput.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 45 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: statusSkip, Note: "quota store not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: statusSkip, Note: "result cache not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name: "Migration: apply (optional)",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: statusSkip, Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: statusFail, Note: "db not configured"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				for _, s := range splitSQL(string(sql)) {
					if _, err := r.db.Exec(ctx, s); err != nil {
						return Result{Status: statusFail, Note: err.Error()}
					}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name: "Migration: tables exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: statusSkip, Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: statusFail, Note: err.Error()}
					}
					if !exists {
						return Result{Status: statusFail, Note: "missing table: " + t}
					}
				}
				return Result{Status: statusPass}
			},
		},

		httpCase("API: health", http.MethodGet, base+"/health", nil, nil, http.StatusOK),
		{
			Name: "API: catalogue lists five flows",
			Run: func(ctx context.Context, r *Runner) Result {
				var body struct {
					Flows []struct {
						Name string `json:"name"`
					} `json:"flows"`
				}
				start := time.Now()
				if err := r.getJSON(ctx, base+"/api/flows", &body); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				if len(body.Flows) != 5 {
					return Result{Status: statusFail, Note: fmt.Sprintf("flows=%d", len(body.Flows))}
				}
				return Result{Status: statusPass, Latency: time.Since(start)}
			},
		},

		// Validation happens before any model call, so these are free to run.
		httpCase("Validate: itinerary missing fields -> 400", http.MethodPost, base+"/api/flows/generateItinerary",
			map[string]any{"destination": "Jaipur"}, nil, http.StatusBadRequest),
		httpCase("Validate: itinerary duration out of range -> 400", http.MethodPost, base+"/api/flows/generateItinerary",
			map[string]any{"destination": "Jaipur", "budget": "20000 INR", "interests": "forts", "duration": 90}, nil, http.StatusBadRequest),
		httpCase("Validate: unsupported language -> 400", http.MethodPost, base+"/api/flows/chat",
			map[string]any{"message": "hello", "language": "fr"}, nil, http.StatusBadRequest),
		httpCase("Validate: empty chat message -> 400", http.MethodPost, base+"/api/flows/chat",
			map[string]any{"message": "   "}, nil, http.StatusBadRequest),
		httpCase("Validate: unknown flow -> 404", http.MethodPost, base+"/api/flows/bookFlight",
			map[string]any{}, nil, http.StatusNotFound),
		httpCase("Validate: malformed caller id -> 400", http.MethodPost, base+"/api/flows/chat",
			map[string]any{"message": "hello"}, map[string]string{"X-User-ID": "bad id!"}, http.StatusBadRequest),

		// Model backed; gated behind -live.
		r.liveCase(httpCase("Flow: generateItinerary", http.MethodPost, base+"/api/flows/generateItinerary",
			map[string]any{"destination": "Jaipur", "budget": "20000 INR", "interests": "forts, food", "duration": 3}, nil, http.StatusOK)),
		r.liveCase(httpCase("Flow: adaptItinerary", http.MethodPost, base+"/api/flows/adaptItinerary",
			map[string]any{"itinerary": "Day 1: Amber Fort at noon", "weather": "Heavy rain after 1pm"}, nil, http.StatusOK)),
		r.liveCase(httpCase("Flow: recommendAccommodationAndTransport", http.MethodPost, base+"/api/flows/recommendAccommodationAndTransport",
			map[string]any{"location": "Udaipur", "preferences": "lake view, under 5000 INR"}, nil, http.StatusOK)),
		r.liveCase(httpCase("Flow: suggestActivities", http.MethodPost, base+"/api/flows/suggestActivities",
			map[string]any{"location": "Munnar", "interests": "tea gardens, trekking"}, nil, http.StatusOK)),
		r.liveCase(httpCase("Flow: chat (hi)", http.MethodPost, base+"/api/flows/chat",
			map[string]any{"message": "What should I pack for Ladakh?", "language": "hi"}, nil, http.StatusOK)),

		{
			Name: "Perf: validation path throughput",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, base+"/api/flows/generateItinerary", map[string]any{"destination": "Goa"})
			},
		},
	}
}

func (r *Runner) liveCase(tc TestCase) TestCase {
	if r.cfg.LiveModel {
		return tc
	}
	return TestCase{
		Name: tc.Name,
		Run: func(context.Context, *Runner) Result {
			return Result{Status: statusSkip, Note: "live=false"}
		},
	}
}

func (r *Runner) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status=%d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func httpCase(name, method, url string, body any, header map[string]string, okStatuses ...int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			var reader io.Reader
			if body != nil {
				b, _ := json.Marshal(body)
				reader = strings.NewReader(string(b))
			}
			req, _ := http.NewRequestWithContext(ctx, method, url, reader)
			req.Header.Set("Content-Type", "application/json")
			for k, v := range header {
				req.Header.Set(k, v)
			}
			start := time.Now()
			resp, err := r.httpc.Do(req)
			if err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			latency := time.Since(start)

			note := fmt.Sprintf("status=%d", resp.StatusCode)
			if contains(okStatuses, resp.StatusCode) {
				return Result{Status: statusPass, Latency: latency, Note: note}
			}
			return Result{Status: statusFail, Latency: latency, Note: note}
		},
	}
}

func perfLoad(ctx context.Context, r *Runner, url string, payload any) Result {
	b, _ := json.Marshal(payload)
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	wg := sync.WaitGroup{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(b)))
				req.Header.Set("Content-Type", "application/json")
				resp, err := r.httpc.Do(req)
				if err != nil {
					errCount.Add(1)
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

func contains(list []int, v int) bool {
	for _, i := range list {
		if i == v {
			return true
		}
	}
	return false
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
