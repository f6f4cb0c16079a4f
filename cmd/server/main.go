package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"finfeed/internal/config"
	"finfeed/internal/logging"
	"finfeed/internal/metrics"
	"finfeed/internal/provider"
	"finfeed/internal/yahoo"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	requestTimeout = time.Duration(cfg.Server.RequestTimeoutSec) * time.Second

	m := metrics.New(prometheus.DefaultRegisterer)
	client, auth, err := yahoo.NewFromConfig(cfg.Yahoo, log, m)
	if err != nil {
		log.Fatal().Err(err).Msg("yahoo client")
	}
	a := &api{
		providers: []provider.Provider{yahoo.NewProvider(client)},
		data:      client,
		session:   auth,
		log:       log,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newHandler(a, promhttp.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      requestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}

// newHandler mounts the JSON API behind the middleware chain and the metrics
// handler beside it, since the exposition format is not JSON.
func newHandler(a *api, metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/quotes", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handleGetQuotes(w, r, a.providers)
		case http.MethodPost:
			handlePostQuotes(w, r, a.providers)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("GET /api/latest", func(w http.ResponseWriter, r *http.Request) {
		handleLatest(w, r, a.providers)
	})
	mux.HandleFunc("GET /api/summary", a.handleSummary)
	mux.HandleFunc("GET /api/history", a.handleHistory)
	mux.HandleFunc("GET /api/options", a.handleOptions)
	mux.HandleFunc("GET /api/stock", a.handleStock)
	mux.HandleFunc("POST /api/screener", a.handleScreener)
	mux.HandleFunc("GET /api/session", a.handleSession)

	root := http.NewServeMux()
	root.Handle("/metrics", metricsHandler)
	root.Handle("/", withJSONHeaders(withGzip(recoverPanic(a.log, limitBody(mux)))))
	return logRequests(a.log, root)
}
