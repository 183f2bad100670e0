package main

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/atomic"
)

const (
	numWorkers   = 50
	testDuration = 10 * time.Second
	numPubkeys   = 200
	scanWait     = 5 * time.Minute
)

var baseURL = "http://127.0.0.1:8090"

var httpClient = &http.Client{
	Timeout: 5 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 200,
		IdleConnTimeout:     30 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   2 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	},
}

type result struct {
	endpoint string
	status   int
	latency  time.Duration
	err      bool
}

type stats struct {
	count     int64
	errors    int64
	latencies []time.Duration
}

func main() {
	if len(os.Args) > 1 {
		baseURL = strings.TrimRight(os.Args[1], "/")
	}

	fmt.Println("=== PvZ Load Test ===")
	fmt.Printf("Target: %s | Workers: %d | Duration: %s\n\n", baseURL, numWorkers, testDuration)

	fmt.Print("Waiting for server... ")
	for i := 0; i < 30; i++ {
		resp, err := httpClient.Get(baseURL + "/health")
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			break
		}
		if i == 29 {
			fmt.Println("FAILED: server not responding")
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	fmt.Println("OK")

	// Phase 1: one adhoc scan so the read endpoints have a report to serve
	fmt.Printf("\n--- Phase 1: Adhoc scan of %d random pubkeys (POST /scan) ---\n", numPubkeys)
	if !seedReport(rand.New(rand.NewSource(time.Now().UnixNano()))) {
		return
	}

	// Phase 2: Read-heavy load
	fmt.Println("\n--- Phase 2: Read load (report, queue, status) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		r := rng.Float64()
		switch {
		case r < 0.40:
			return doGet("GET /report", "/report?owner=adhoc", 200)
		case r < 0.75:
			return doGet("GET /queue", fmt.Sprintf("/queue?owner=adhoc&batch=%d", rng.Intn(50)+1), 200)
		case r < 0.85:
			return doGet("GET /reports", "/reports", 200)
		case r < 0.95:
			return doGet("GET /scan", "/scan", 200)
		default:
			return doGet("GET /health", "/health", 200)
		}
	})

	// Phase 3: Scan requests racing reads; all but one must be rejected
	fmt.Println("\n--- Phase 3: Concurrent scan requests (expect 409) ---")
	runPhase(testDuration/2, func(rng *rand.Rand) result {
		if rng.Float64() < 0.2 {
			return doStartScan(rng, 1, http.StatusConflict)
		}
		return doGet("GET /report", "/report?owner=adhoc", 200)
	})
	doPost("POST /scan/cancel", "/scan/cancel", nil, http.StatusAccepted)
}

func randomPubkey(rng *rand.Rand) string {
	b := make([]byte, 32)
	rng.Read(b)
	return fmt.Sprintf("%x", b)
}

func seedReport(rng *rand.Rand) bool {
	r := doStartScan(rng, numPubkeys, http.StatusAccepted)
	if r.err {
		fmt.Printf("FAILED: POST /scan returned %d\n", r.status)
		return false
	}

	deadline := time.Now().Add(scanWait)
	for time.Now().Before(deadline) {
		resp, err := httpClient.Get(baseURL + "/scan")
		if err == nil {
			var status struct {
				Scanning  bool   `json:"scanning"`
				LastError string `json:"lastError"`
				Progress  struct {
					Stage     string `json:"stage"`
					Processed int    `json:"processed"`
					Total     int    `json:"total"`
				} `json:"progress"`
			}
			_ = json.NewDecoder(resp.Body).Decode(&status)
			resp.Body.Close()
			if !status.Scanning {
				if status.LastError != "" {
					fmt.Printf("FAILED: scan error: %s\n", status.LastError)
					return false
				}
				fmt.Println("  scan finished")
				return true
			}
			fmt.Printf("  %s %d/%d\n", status.Progress.Stage, status.Progress.Processed, status.Progress.Total)
		}
		time.Sleep(time.Second)
	}
	fmt.Println("FAILED: scan did not finish in time")
	return false
}

func runPhase(duration time.Duration, workFn func(rng *rand.Rand) result) {
	results := make(chan result, 10000)
	var wg sync.WaitGroup
	totalOps := atomic.NewInt64(0)
	stop := make(chan struct{})

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for {
				select {
				case <-stop:
					return
				default:
					r := workFn(rng)
					totalOps.Inc()
					results <- r
				}
			}
		}(rand.Int63() + int64(i))
	}

	allResults := make(map[string]*stats)
	done := make(chan struct{})
	go func() {
		for r := range results {
			s, ok := allResults[r.endpoint]
			if !ok {
				s = &stats{}
				allResults[r.endpoint] = s
			}
			s.count++
			if r.err {
				s.errors++
			}
			s.latencies = append(s.latencies, r.latency)
		}
		close(done)
	}()

	time.Sleep(duration)
	close(stop)
	wg.Wait()
	close(results)
	<-done

	printResults(allResults, duration)
}

func printResults(allResults map[string]*stats, duration time.Duration) {
	var totalOps int64
	var totalErrors int64

	endpoints := make([]string, 0, len(allResults))
	for ep := range allResults {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints)

	fmt.Printf("\n  %-22s %8s %6s %10s %10s %10s %10s\n",
		"Endpoint", "Reqs", "Errs", "Avg", "P50", "P95", "P99")
	fmt.Println("  " + strings.Repeat("-", 88))

	for _, ep := range endpoints {
		s := allResults[ep]
		totalOps += s.count
		totalErrors += s.errors

		sort.Slice(s.latencies, func(i, j int) bool {
			return s.latencies[i] < s.latencies[j]
		})

		fmt.Printf("  %-22s %8d %6d %10s %10s %10s %10s\n",
			ep, s.count, s.errors,
			fmtDur(avgDuration(s.latencies)),
			fmtDur(percentile(s.latencies, 0.50)),
			fmtDur(percentile(s.latencies, 0.95)),
			fmtDur(percentile(s.latencies, 0.99)))
	}

	if totalOps == 0 {
		return
	}
	rps := float64(totalOps) / duration.Seconds()
	fmt.Println("  " + strings.Repeat("-", 88))
	fmt.Printf("  Total: %d reqs | Errors: %d (%.1f%%) | RPS: %.0f\n",
		totalOps, totalErrors, float64(totalErrors)/float64(totalOps)*100, rps)
}

func doStartScan(rng *rand.Rand, n int, want int) result {
	pubkeys := make([]string, n)
	for i := range pubkeys {
		pubkeys[i] = randomPubkey(rng)
	}
	data, _ := json.Marshal(map[string][]string{"pubkeys": pubkeys})
	return doPost("POST /scan", "/scan", data, want)
}

func doPost(endpoint, path string, body []byte, want int) result {
	start := time.Now()
	resp, err := httpClient.Post(baseURL+path, "application/json", bytes.NewReader(body))
	lat := time.Since(start)
	if err != nil {
		return result{endpoint, 0, lat, true}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return result{endpoint, resp.StatusCode, lat, resp.StatusCode != want}
}

func doGet(endpoint, path string, want int) result {
	start := time.Now()
	resp, err := httpClient.Get(baseURL + path)
	lat := time.Since(start)
	if err != nil {
		return result{endpoint, 0, lat, true}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return result{endpoint, resp.StatusCode, lat, resp.StatusCode != want}
}

func avgDuration(d []time.Duration) time.Duration {
	if len(d) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range d {
		sum += v
	}
	return sum / time.Duration(len(d))
}

func percentile(d []time.Duration, p float64) time.Duration {
	if len(d) == 0 {
		return 0
	}
	idx := int(float64(len(d)) * p)
	if idx >= len(d) {
		idx = len(d) - 1
	}
	return d[idx]
}

func fmtDur(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000.0)
}
