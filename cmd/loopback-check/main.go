// Loopback check runs one loopback scenario and reports the verdict.
//
// A media pipeline loops a client's media back to it; the client is
// judged on readiness, play time, rendered color and perceived audio
// quality.
//
// Usage:
//
//	go run ./cmd/loopback-check -expect-color '#008700'
//	go run ./cmd/loopback-check -config scenario.yaml -output json
//	go run ./cmd/loopback-check -client peer -video clip.ivf
//
// Exit codes: 0 all criteria passed, 1 a criterion failed, 2 the scenario
// could not be run.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/logging"

	"github.com/thesyncim/loopback/cmd/loopback-server/server"
	"github.com/thesyncim/loopback/pkg/loopback"
	"github.com/thesyncim/loopback/pkg/loopback/browser"
	"github.com/thesyncim/loopback/pkg/loopback/media"
	"github.com/thesyncim/loopback/pkg/loopback/peer"
	"github.com/thesyncim/loopback/pkg/loopback/quality"
)

const (
	exitPass   = 0
	exitFailed = 1
	exitError  = 2
)

// options are the command line flags not part of the scenario.
type options struct {
	configPath string
	output     string
	client     string
	headless   bool
	pesqBin    string
	addr       string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, opts, err := parseArgs(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	lf := logging.NewDefaultLoggerFactory()

	backend, err := media.NewFactory(withLogger(media.DefaultConfig(), lf))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	var sessions loopback.SessionFactory
	switch opts.client {
	case "browser":
		srvCfg := server.DefaultConfig()
		srvCfg.Addr = opts.addr
		srvCfg.LoggerFactory = lf
		srv, err := server.NewServer(srvCfg, backend)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
		if _, err := srv.Start(); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		bcfg := browser.DefaultConfig(srv.LocalURL())
		bcfg.Headless = opts.headless
		bcfg.LoggerFactory = lf
		launcher, err := browser.NewLauncher(bcfg)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
		sessions = launcher
	case "peer":
		sessions = peer.NewFactory(peer.Config{LoggerFactory: lf})
	default:
		fmt.Fprintf(stderr, "Error: unknown client %q (want browser or peer)\n", opts.client)
		return exitError
	}

	runner := loopback.NewRunner(backend, sessions,
		loopback.WithScorer(quality.PESQ{Bin: opts.pesqBin}),
		loopback.WithLoggerFactory(lf),
	)

	verdict, err := runner.Run(ctx, cfg)
	if err != nil {
		var setup *loopback.SetupError
		if errors.As(err, &setup) {
			fmt.Fprintf(stderr, "Error: %v (stage %s)\n", err, setup.Stage)
		} else {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return exitError
	}

	if err := writeVerdict(stdout, opts.output, verdict); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	if !verdict.Passed {
		return exitFailed
	}
	return exitPass
}

// parseArgs builds the scenario from the config file, then applies the
// flags that were set explicitly.
func parseArgs(args []string, stderr io.Writer) (loopback.ScenarioConfig, options, error) {
	fs := flag.NewFlagSet("loopback-check", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.configPath, "config", "", "YAML scenario file")
	fs.StringVar(&opts.output, "output", "text", "Output format: text or json")
	fs.StringVar(&opts.client, "client", "browser", "Session client: browser or peer")
	fs.BoolVar(&opts.headless, "headless", true, "Run the browser headless")
	fs.StringVar(&opts.pesqBin, "pesq", "pesq", "PESQ executable")
	fs.StringVar(&opts.addr, "addr", "127.0.0.1:0", "Harness server listen address")

	defaults := loopback.DefaultScenarioConfig()
	browserKind := fs.String("browser", string(defaults.Browser), "Browser: chrome or chromium")
	video := fs.String("video", "", "Video reference (file or URL)")
	audio := fs.String("audio", "", "Audio reference WAV (file or URL)")
	var color loopback.Color
	fs.TextVar(&color, "expect-color", loopback.ColorGreen, "Expected rendered color (#rrggbb)")
	play := fs.Duration("play", defaults.PlayDuration, "Play window")
	ready := fs.Duration("ready-timeout", defaults.ReadyTimeout, "Readiness timeout")
	timing := fs.Duration("timing-tolerance", defaults.TimingTolerance, "Play time tolerance (0 disables)")
	colorTol := fs.Float64("color-tolerance", defaults.ColorTolerance, "Color distance tolerance")
	minScore := fs.Float64("min-audio-score", defaults.MinAudioScore, "Minimum PESQ MOS-LQO")
	workDir := fs.String("workdir", "", "Directory for downloaded references")

	if err := fs.Parse(args); err != nil {
		return loopback.ScenarioConfig{}, opts, err
	}
	if fs.NArg() > 0 {
		return loopback.ScenarioConfig{}, opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.output != "text" && opts.output != "json" {
		return loopback.ScenarioConfig{}, opts, fmt.Errorf("unknown output format %q", opts.output)
	}

	cfg := defaults
	if opts.configPath != "" {
		loaded, err := loopback.LoadScenarioConfig(opts.configPath)
		if err != nil {
			return loopback.ScenarioConfig{}, opts, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "browser":
			cfg.Browser = loopback.BrowserKind(*browserKind)
		case "video":
			cfg.Video = *video
		case "audio":
			cfg.Audio = *audio
		case "expect-color":
			c := color
			cfg.ExpectedColor = &c
		case "play":
			cfg.PlayDuration = *play
		case "ready-timeout":
			cfg.ReadyTimeout = *ready
		case "timing-tolerance":
			cfg.TimingTolerance = *timing
		case "color-tolerance":
			cfg.ColorTolerance = *colorTol
		case "min-audio-score":
			cfg.MinAudioScore = *minScore
		case "workdir":
			cfg.WorkDir = *workDir
		}
	})

	if err := cfg.Validate(); err != nil {
		return loopback.ScenarioConfig{}, opts, err
	}
	return cfg, opts, nil
}

func writeVerdict(w io.Writer, format string, v *loopback.Verdict) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	for _, r := range v.Results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(w, "  %-10s %s  expected %s, observed %s\n", r.Criterion, status, r.Expected, r.Observed)
		if r.Message != "" {
			fmt.Fprintf(w, "             %s\n", r.Message)
		}
	}
	_, err := fmt.Fprintf(w, "Status: %s\n", checkMark(v.Passed))
	return err
}

func withLogger(cfg media.Config, lf logging.LoggerFactory) media.Config {
	cfg.LoggerFactory = lf
	return cfg
}

func checkMark(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}
