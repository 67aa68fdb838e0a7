package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mevdschee/tqingest/config"
	"github.com/mevdschee/tqingest/ilp"
	"github.com/mevdschee/tqingest/metrics"
	"github.com/mevdschee/tqingest/sender"
)

func main() {
	configPath := flag.String("config", "config.ini", "Path to configuration file")
	conf := flag.String("conf", "", "Configuration string, overrides -config")
	metricsAddr := flag.String("metrics", "", "Metrics endpoint address, e.g. :9090")
	verbose := flag.Bool("v", false, "Log every flush")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var cfg *config.Config
	var err error
	if *conf != "" {
		cfg, err = config.Parse(*conf)
	} else {
		cfg, err = config.Load(*configPath)
	}
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	metrics.Init()
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			log.Info("metrics endpoint", "url", "http://localhost"+*metricsAddr+"/metrics")
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error("metrics server error", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := sender.New(ctx, cfg, sender.WithLogger(log))
	if err != nil {
		log.Error("failed to connect", "addr", cfg.Addr(), "error", err)
		os.Exit(1)
	}

	n, err := pump(ctx, s, bufio.NewScanner(os.Stdin), log)
	// Pending rows are flushed even after a signal.
	if cerr := s.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		log.Error("ingest failed", "rows", n, "error", err)
		os.Exit(1)
	}
	log.Info("done", "rows", n)
}

// pump sends every input line as a row until EOF, a signal or an error.
// Malformed lines and rejected rows are logged and skipped.
func pump(ctx context.Context, s *sender.Sender, in *bufio.Scanner, log *slog.Logger) (int, error) {
	in.Buffer(make([]byte, 64*1024), 16*1024*1024)
	n, lineNo := 0, 0
	for in.Scan() {
		lineNo++
		if ctx.Err() != nil {
			return n, nil
		}
		line := in.Bytes()
		if len(line) == 0 {
			continue
		}
		r, err := parseRow(line)
		if err != nil {
			log.Warn("skipping malformed line", "line", lineNo, "error", err)
			continue
		}
		if err := s.Row(ctx, r); err != nil {
			switch ilp.CodeOf(err) {
			case ilp.ErrInvalidName, ilp.ErrInvalidValue, ilp.ErrInvalidAPICall:
				log.Warn("skipping invalid row", "line", lineNo, "error", err)
				continue
			}
			return n, err
		}
		n++
	}
	return n, in.Err()
}
