// Soak test runner for long-duration loopback testing.
//
// This tool repeats the loopback scenario with Go peer sessions and
// monitors the process for leaked pipelines, goroutines and heap over
// extended periods (up to 24 hours or more).
//
// Usage:
//
//	go run ./cmd/soak -duration 24h
//	go run ./cmd/soak -duration 1h -play 2s  # shorter test
//
// Exposes pprof endpoint at :6060 for live profiling:
//
//	curl http://localhost:6060/debug/pprof/goroutine?debug=1
//	go tool pprof http://localhost:6060/debug/pprof/heap
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof" // Enable pprof endpoints
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/pion/logging"

	"github.com/thesyncim/loopback/pkg/loopback"
	"github.com/thesyncim/loopback/pkg/loopback/media"
	"github.com/thesyncim/loopback/pkg/loopback/peer"
)

const (
	statusInterval = time.Minute
	heapLimitMB    = 200
	// Goroutines allowed above the post-warmup baseline.
	goroutineSlack = 50
)

// SoakResult contains the results of a soak test run.
type SoakResult struct {
	Duration        time.Duration
	Runs            int
	FailedRuns      int
	Errors          int
	PeakHeapMB      float64
	TotalGCCycles   uint32
	BaseGoroutines  int
	PeakGoroutines  int
	LeakedPipelines int
	Status          string
}

func main() {
	// Parse flags
	duration := flag.Duration("duration", 24*time.Hour, "Test duration (e.g., 1h, 24h)")
	play := flag.Duration("play", 5*time.Second, "Play window of each scenario")
	video := flag.String("video", "", "Optional VP8 IVF clip sent by the peer")
	pprofPort := flag.Int("pprof-port", 6060, "Port for pprof HTTP server")
	flag.Parse()

	fmt.Printf("Loopback Soak Test Runner\n")
	fmt.Printf("=========================\n")
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Play:     %v\n", *play)
	fmt.Printf("Pprof:    http://localhost:%d/debug/pprof/\n", *pprofPort)
	fmt.Printf("\n")

	// Start pprof server in background
	go func() {
		addr := fmt.Sprintf(":%d", *pprofPort)
		if err := http.ListenAndServe(addr, nil); err != nil {
			fmt.Printf("Warning: pprof server failed: %v\n", err)
		}
	}()

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived %v, shutting down gracefully...\n", sig)
		cancel()
	}()

	cfg := loopback.DefaultScenarioConfig()
	cfg.PlayDuration = *play
	cfg.ReadyTimeout = 30 * time.Second
	cfg.Video = *video

	// Run the soak test
	result, err := runSoakTest(ctx, *duration, cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(2)
	}

	// Print final summary
	printSummary(result)

	// Exit with appropriate status
	if result.Status == "PASS" {
		os.Exit(0)
	}
	os.Exit(1)
}

func runSoakTest(ctx context.Context, duration time.Duration, cfg loopback.ScenarioConfig) (SoakResult, error) {
	lf := logging.NewDefaultLoggerFactory()
	lf.DefaultLogLevel = logging.LogLevelWarn

	mediaCfg := media.DefaultConfig()
	mediaCfg.LoggerFactory = lf
	backend, err := media.NewFactory(mediaCfg)
	if err != nil {
		return SoakResult{}, err
	}
	runner := loopback.NewRunner(backend,
		peer.NewFactory(peer.Config{LoggerFactory: lf}),
		loopback.WithLoggerFactory(lf),
	)

	result := SoakResult{
		Status: "PASS",
	}

	var memStats runtime.MemStats
	startTime := time.Now()
	lastStatusTime := startTime

	fmt.Printf("[%s] Starting soak test...\n", formatDuration(time.Duration(0)))

	for {
		elapsed := time.Since(startTime)
		if ctx.Err() != nil || elapsed >= duration {
			result.Duration = elapsed
			return result, nil
		}

		verdict, err := runner.Run(ctx, cfg)
		result.Runs++
		switch {
		case err != nil:
			if ctx.Err() != nil {
				continue
			}
			fmt.Printf("[%s] ERROR: run %d: %v\n", formatDuration(elapsed), result.Runs, err)
			result.Errors++
			result.Status = "FAIL"
		case !verdict.Passed:
			fmt.Printf("[%s] ERROR: run %d failed:\n%s\n", formatDuration(elapsed), result.Runs, verdict)
			result.FailedRuns++
			result.Status = "FAIL"
		}

		// Every run releases its pipeline before returning.
		if n := backend.Pipelines(); n > 0 {
			fmt.Printf("[%s] ERROR: %d pipelines still live after run %d\n", formatDuration(elapsed), n, result.Runs)
			result.LeakedPipelines += n
			result.Status = "FAIL"
		}

		goroutines := runtime.NumGoroutine()
		if result.Runs == 1 {
			result.BaseGoroutines = goroutines
		}
		if goroutines > result.PeakGoroutines {
			result.PeakGoroutines = goroutines
		}

		// Periodic status output
		now := time.Now()
		if now.Sub(lastStatusTime) >= statusInterval {
			lastStatusTime = now
			runtime.ReadMemStats(&memStats)

			heapMB := float64(memStats.HeapAlloc) / (1024 * 1024)
			if heapMB > result.PeakHeapMB {
				result.PeakHeapMB = heapMB
			}
			result.TotalGCCycles = memStats.NumGC

			fmt.Printf("[%s] Runs: %d, Failed: %d, Goroutines: %d, HeapAlloc: %.2f MB, NumGC: %d\n",
				formatDuration(elapsed),
				result.Runs,
				result.FailedRuns+result.Errors,
				goroutines,
				heapMB,
				memStats.NumGC)

			if heapMB > heapLimitMB {
				fmt.Printf("[%s] ERROR: Memory limit exceeded: %.2f MB\n", formatDuration(elapsed), heapMB)
				result.Status = "FAIL"
			}
			if goroutines > result.BaseGoroutines+goroutineSlack {
				fmt.Printf("[%s] ERROR: Goroutines grew from %d to %d\n", formatDuration(elapsed), result.BaseGoroutines, goroutines)
				result.Status = "FAIL"
			}
		}
	}
}

func printSummary(result SoakResult) {
	fmt.Printf("\n")
	fmt.Printf("Soak Test Complete\n")
	fmt.Printf("==================\n")
	fmt.Printf("Duration:          %v\n", result.Duration.Round(time.Second))
	fmt.Printf("Runs:              %d\n", result.Runs)
	fmt.Printf("Failed runs:       %d\n", result.FailedRuns)
	fmt.Printf("Errors:            %d\n", result.Errors)
	fmt.Printf("Leaked pipelines:  %d\n", result.LeakedPipelines)
	fmt.Printf("Goroutines:        %d -> peak %d\n", result.BaseGoroutines, result.PeakGoroutines)
	fmt.Printf("Peak HeapAlloc:    %.2f MB\n", result.PeakHeapMB)
	fmt.Printf("Total GC cycles:   %d\n", result.TotalGCCycles)
	fmt.Printf("Status:            %s\n", result.Status)
	fmt.Printf("\n")

	// Pass criteria
	fmt.Printf("Pass Criteria:\n")
	fmt.Printf("  - No panics:             %s\n", checkMark(true))
	fmt.Printf("  - Every run passed:      %s\n", checkMark(result.FailedRuns == 0 && result.Errors == 0))
	fmt.Printf("  - No leaked pipelines:   %s\n", checkMark(result.LeakedPipelines == 0))
	fmt.Printf("  - Peak memory < %d MB:  %s\n", heapLimitMB, checkMark(result.PeakHeapMB < heapLimitMB))
}

func formatDuration(d time.Duration) string {
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func checkMark(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}
