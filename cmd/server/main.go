package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"biomelevel.ai/internal/persistence/store"
	"biomelevel.ai/internal/transport/ws"
	"biomelevel.ai/internal/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configPath = flag.String("config", "./configs/levels.yaml", "path to levels.yaml (missing file means defaults)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite level index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cp := strings.TrimSpace(*configPath)
	if _, err := os.Stat(cp); err != nil {
		logger.Printf("config %s not found, using defaults", cp)
		cp = ""
	}
	tune, err := tuning.Load(cp)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *disableDB {
		tune.Storage.DisableIndex = true
	}

	st, err := store.Open(*dataDir, tune, log.New(os.Stdout, "[store] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Printf("close store: %v", err)
		}
	}()

	ctx, cancel := signalContext()
	defer cancel()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newMux(st, tune, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (data=%s index=%v)", *addr, *dataDir, !tune.Storage.DisableIndex)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("ListenAndServe: %v", err)
	}
}

func newMux(st *store.Store, tune tuning.Tuning, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		q := st.IndexStats()
		_, _ = fmt.Fprintf(rw, "levels_index_drop_level_total %d\n", q.DropLevelTotal)
		_, _ = fmt.Fprintf(rw, "levels_index_drop_event_total %d\n", q.DropEventTotal)
		_, _ = fmt.Fprintf(rw, "levels_index_drop_revision_total %d\n", q.DropRevisionTotal)
		m := st.MirrorStats()
		_, _ = fmt.Fprintf(rw, "levels_mirror_queue_depth %d\n", m.QueueDepth)
		_, _ = fmt.Fprintf(rw, "levels_mirror_dropped_total %d\n", m.DroppedTotal)
		_, _ = fmt.Fprintf(rw, "levels_mirror_upload_success_total %d\n", m.UploadSuccessTotal)
		_, _ = fmt.Fprintf(rw, "levels_mirror_upload_fail_total %d\n", m.UploadFailTotal)
		a := st.AuditStats()
		_, _ = fmt.Fprintf(rw, "levels_audit_written_total %d\n", a.WrittenTotal)
		_, _ = fmt.Fprintf(rw, "levels_audit_failed_total %d\n", a.FailedTotal)
	})
	if envBool("LEVELS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/levels", ws.NewServer(st, tune, logger).Handler())
	return mux
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
