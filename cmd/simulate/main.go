package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/careloop/appointment-lifecycle/internal/db"
)

// The simulator fires overlapping invocations of the same dispatch endpoint
// to demonstrate that concurrent batch runs never produce duplicate
// notifications or double transitions. After the run it audits the
// notification table for (related_entity_id, kind) pairs stored more than
// once.

type SimConfig struct {
	APIBaseURL  string
	Rounds      int
	Concurrency int
	PostgresDSN string
}

type OperationMetrics struct {
	mu        sync.Mutex
	Total     int
	Errors    int
	Attempted int
	Succeeded int
	Failed    int
	Latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, resp *dispatchResponse, err error) {
	om.mu.Lock()
	defer om.mu.Unlock()

	om.Total++
	om.Latencies = append(om.Latencies, latency)
	if err != nil {
		om.Errors++
		return
	}
	om.Attempted += resp.Result.Attempted
	om.Succeeded += resp.Result.Succeeded
	om.Failed += len(resp.Result.Failures)
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	return avg, p50, p95
}

type dispatchResponse struct {
	Job    string `json:"job"`
	Result struct {
		Attempted int `json:"attempted"`
		Succeeded int `json:"succeeded"`
		Failures  []struct {
			CandidateID string `json:"candidate_id"`
			Err         string `json:"error"`
		} `json:"failures"`
	} `json:"result"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := SimConfig{
		APIBaseURL:  getEnv("API_BASE_URL", "http://127.0.0.1:8080"),
		Rounds:      getIntEnv("SIM_ROUNDS", 5),
		Concurrency: getIntEnv("SIM_CONCURRENCY", 8),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}

	log.Printf("simulate starting base_url=%s rounds=%d concurrency=%d",
		cfg.APIBaseURL, cfg.Rounds, cfg.Concurrency)

	client := &http.Client{Timeout: 30 * time.Second}
	endpoints := []string{
		"/dispatch/reminders",
		"/dispatch/review-prompts",
		"/dispatch/missed-sweep",
	}

	for _, endpoint := range endpoints {
		metrics := &OperationMetrics{}

		for round := 0; round < cfg.Rounds; round++ {
			var wg sync.WaitGroup
			for i := 0; i < cfg.Concurrency; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					fire(client, cfg.APIBaseURL+endpoint, metrics)
				}()
			}
			wg.Wait()
		}

		avg, p50, p95 := metrics.Stats()
		log.Printf("%s: calls=%d errors=%d attempted=%d succeeded=%d failed=%d avg=%s p50=%s p95=%s",
			endpoint, metrics.Total, metrics.Errors, metrics.Attempted, metrics.Succeeded, metrics.Failed,
			avg, p50, p95)
	}

	if cfg.PostgresDSN != "" {
		if err := auditDuplicates(cfg.PostgresDSN); err != nil {
			log.Fatalf("duplicate audit failed: %v", err)
		}
	} else {
		log.Println("POSTGRES_DSN not set, skipping duplicate audit")
	}
}

func fire(client *http.Client, url string, metrics *OperationMetrics) {
	start := time.Now()

	resp, err := client.Post(url, "application/json", nil)
	if err != nil {
		metrics.Record(time.Since(start), nil, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.Record(time.Since(start), nil, err)
		return
	}
	if resp.StatusCode != http.StatusOK {
		metrics.Record(time.Since(start), nil, fmt.Errorf("status %d: %s", resp.StatusCode, body))
		return
	}

	var dr dispatchResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		metrics.Record(time.Since(start), nil, err)
		return
	}

	metrics.Record(time.Since(start), &dr, nil)
}

// auditDuplicates verifies the idempotency invariant end to end: no
// (related_entity_id, kind) pair may appear more than once, no matter how
// many overlapping runs the simulation fired.
func auditDuplicates(dsn string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()

	var duplicates int
	err = pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM (
			SELECT related_entity_id, kind
			FROM notifications
			GROUP BY related_entity_id, kind
			HAVING COUNT(*) > 1
		) d
	`).Scan(&duplicates)
	if err != nil {
		return err
	}

	if duplicates > 0 {
		return fmt.Errorf("found %d duplicated (related_entity_id, kind) pairs", duplicates)
	}

	log.Println("duplicate audit passed: every (related_entity_id, kind) pair is unique")
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
