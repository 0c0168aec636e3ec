package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	datalogger "github.com/grillbaer/data-logger"
	"github.com/grillbaer/data-logger/internal/adapters/logstore"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "replay":
		err = replayCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("data-logger %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return datalogger.Run(ctx, *cfgPath)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := datalogger.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	fmt.Printf("config %s: %d sources, log dir %s\n", *cfgPath, len(cfg.Sources), cfg.Log.Dir)
	return nil
}

func replayCommand(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file")
	window := fs.Duration("window", 24*time.Hour, "Replay window")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := datalogger.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}

	rl, err := logstore.NewFileLog(cfg.Log.Dir, cfg.Log.Retention())
	if err != nil {
		return err
	}
	defer rl.Close()

	recent, err := rl.LoadRecent(time.Now(), *window)
	if err != nil {
		return err
	}

	var total int
	for _, s := range cfg.Sources {
		n := len(recent[s.ID])
		total += n
		fmt.Printf("%-20s %6d records\n", s.ID, n)
	}
	fmt.Printf("%-20s %6d records in the last %s\n", "total", total, *window)
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		"datalogger_readings_ok_total":    0,
		"datalogger_readings_error_total": 0,
		"datalogger_published_total":      0,
		"datalogger_store_samples":        0,
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range targets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %f", &value); err == nil {
					targets[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] ok=%.0f errors=%.0f published=%.0f samples=%.0f\n",
		time.Now().Format(time.RFC3339),
		targets["datalogger_readings_ok_total"],
		targets["datalogger_readings_error_total"],
		targets["datalogger_published_total"],
		targets["datalogger_store_samples"],
	)
	return nil
}

func printUsage() {
	fmt.Printf(`data-logger CLI

Usage:
  data-logger <command> [flags]

Commands:
  run        Start polling using the provided config
  validate   Load and validate a config file without starting
  replay     Print how many logged records fall inside a replay window
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  data-logger run -config ./data/config.yaml
  data-logger validate -config ./data/config.yaml
  data-logger replay -config ./data/config.yaml -window 24h
  data-logger stats -url http://localhost:9100/metrics -interval 1s
`)
}
