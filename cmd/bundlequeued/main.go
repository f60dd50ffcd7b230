// Command bundlequeued runs the bundle queue daemon: one registry, one
// search scheduler, the "queue" view controller, and the HTTP/WebSocket
// API that exposes them (SPEC_FULL.md §2 components 11-12).
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/bundlequeue/internal/clock"
	"github.com/example/bundlequeue/internal/persistence"
	"github.com/example/bundlequeue/internal/queue/bundle"
	"github.com/example/bundlequeue/internal/queue/registry"
	"github.com/example/bundlequeue/internal/queue/scheduler"
	"github.com/example/bundlequeue/internal/queueview"
	"github.com/example/bundlequeue/internal/rng"
	"github.com/example/bundlequeue/internal/settings"
	"github.com/example/bundlequeue/internal/telemetry"
	"github.com/example/bundlequeue/internal/ws"
	"github.com/example/bundlequeue/internal/wsapi"
)

func randToken() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func main() {
	addr := flag.String("http", "127.0.0.1:0", "HTTP listen address (loopback only)")
	settingsPath := flag.String("settings", "", "path to settings.yaml (defaults if empty)")
	descriptorDir := flag.String("descriptor-dir", "./bundles", "directory for bundle XML descriptors")
	schedulerTick := flag.Duration("scheduler-tick", time.Second, "search scheduler tick interval")
	viewTick := flag.Duration("view-tick", 200*time.Millisecond, "view controller tick interval")
	debugLog := flag.Bool("debug", false, "verbose development logging")
	printConnJSON := flag.Bool("print-conn-json", true, "print connection info JSON to stdout on start")
	flag.Parse()

	log, err := telemetry.NewLogger(*debugLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := settings.Default()
	if *settingsPath != "" {
		loaded, err := settings.Load(*settingsPath)
		if err != nil {
			log.Fatal("failed to load settings", zap.Error(err))
		}
		cfg = loaded
	}

	clk := clock.NewMonotonic()
	store := persistence.NewXMLStore(*descriptorDir, log)
	seedBytes := make([]byte, 8)
	_, _ = rand.Read(seedBytes)
	var seed int64
	for _, c := range seedBytes {
		seed = seed<<8 | int64(c)
	}
	sampler := rng.NewGonumWeighted(seed)
	sched := scheduler.New(sampler, clk, settings.SchedulerSource{Config: cfg}, log)
	reg := registry.New(sched, log)
	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	token := randToken()
	wss := ws.NewServer(token)

	queueCtrl := queueview.New(nil)
	router := wsapi.NewRouter(queueCtrl, log)
	router.Attach(wss)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wss.HandleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", telemetry.Handler(nil))

	newBundle := func(token, target string, isFileBundle bool, priority bundle.Priority) *bundle.Bundle {
		return bundle.New(token, target, isFileBundle, priority, store, clk.NowMs())
	}
	wsapi.RegisterBundleRoutes(mux, "/api/v1/bundles", reg, newBundle)
	wsapi.RegisterSchedulerRoutes(mux, "/api/v1/queue", sched, clk, metrics)
	wsapi.RegisterRoutes(mux, "/api/v1/views/queue", queueCtrl, func() []*bundle.Bundle {
		return reg.GetSubBundles("/")
	})

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatal("listen", zap.Error(err))
	}
	srv := &http.Server{Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return srv.Serve(ln) })
	g.Go(func() error { return runTicker(gctx, *schedulerTick, func() { tickScheduler(sched, clk, metrics) }) })
	g.Go(func() error {
		return runTicker(gctx, *viewTick, func() {
			start := time.Now()
			queueCtrl.Tick()
			metrics.ObserveTick("queue", time.Since(start))
		})
	})

	port := ln.Addr().(*net.TCPAddr).Port
	if *printConnJSON {
		fmt.Printf(`{"port":%d,"token":%q}`+"\n", port, token)
	}
	log.Info("bundlequeued listening", zap.Int("port", port))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
	case <-gctx.Done():
	}
	cancel()
	_ = srv.Close()
	reg.SaveQueue(true)
	_ = g.Wait()
}

// runTicker is the errgroup-bound non-overlapping periodic task loop
// (spec.md §5 "Timer contract": if a tick runs long, the next tick is
// scheduled after completion) — grounded in the pack's
// golang.org/x/sync/errgroup lifecycle idiom (SPEC_FULL.md §5).
func runTicker(ctx context.Context, interval time.Duration, fn func()) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			fn()
		}
	}
}

func tickScheduler(sched *scheduler.Scheduler, clk clock.Clock, metrics *telemetry.Metrics) {
	if _, ok := sched.PickNextSearch(clk.NowMs(), false); ok {
		metrics.RecordPick("auto")
	} else {
		metrics.RecordPick("none")
	}
}
