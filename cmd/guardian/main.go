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

	"github.com/qqncnc/VPS-Traffic-Guardian/pkg/guardian"
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
	case "status":
		err = statusCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("guardian %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "/etc/guardian/config.yaml", "Path to guardian configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := guardian.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := guardian.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rt.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "/etc/guardian/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := guardian.LoadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func statusCommand(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Watching guardian at %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printStatusSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "status error: %v\n", err)
			}
		}
	}
}

func printStatusSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		"guardian_mode":               0,
		"guardian_bandwidth_bps":      0,
		"guardian_daily_bytes_total":  0,
		"guardian_distinct_peers":     0,
		"guardian_daily_unique_peers": 0,
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

	fmt.Printf("[%s] mode=%s bw=%.1f Mbps daily=%.2f GiB peers=%.0f unique_today=%.0f\n",
		time.Now().Format(time.RFC3339),
		modeName(targets["guardian_mode"]),
		targets["guardian_bandwidth_bps"]/1e6,
		targets["guardian_daily_bytes_total"]/(1<<30),
		targets["guardian_distinct_peers"],
		targets["guardian_daily_unique_peers"],
	)
	return nil
}

func modeName(v float64) string {
	switch v {
	case 1:
		return "throttled"
	case 2:
		return "shutdown_initiated"
	default:
		return "normal"
	}
}

func printUsage() {
	fmt.Printf(`VPS Traffic Guardian

Usage:
  guardian <command> [flags]

Commands:
  run        Start the guardian using the provided config
  validate   Load and validate a config file without starting the loop
  status     Poll the Prometheus endpoint and print live guardian state

Examples:
  guardian run -config /etc/guardian/config.yaml
  guardian validate -config ./config.yaml
  guardian status -url http://localhost:9100/metrics -interval 1s
`)
}
