package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	var model string
	var host string
	var port string
	var version bool
	var exitCode int
	// Accept the subset of text-embeddings-router flags used by the adapter
	flag.StringVar(&model, "model-id", "", "model directory")
	flag.StringVar(&host, "hostname", "127.0.0.1", "host")
	flag.StringVar(&port, "port", "0", "port")
	flag.BoolVar(&version, "version", false, "print version")
	flag.IntVar(&exitCode, "exit", -1, "exit immediately with this code")
	flag.Parse()

	if version {
		fmt.Println("fake-classifier 0.1.0")
		return
	}
	if exitCode >= 0 {
		fmt.Fprintln(os.Stderr, "fake-classifier: exiting on request")
		os.Exit(exitCode)
	}
	if _, err := os.Stat(model); err != nil {
		fmt.Fprintf(os.Stderr, "fake-classifier: model: %v\n", err)
		os.Exit(2)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"model_id": model, "version": "0.1.0"})
	})
	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs string `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		pos, neg := 0.5, 0.5
		text := strings.ToLower(req.Inputs)
		switch {
		case strings.Contains(text, "don't") || strings.Contains(text, "not") || strings.Contains(text, "bad"):
			pos, neg = 0.0021, 0.9979
		case strings.Contains(text, "wonderful") || strings.Contains(text, "nice") || strings.Contains(text, "good"):
			pos, neg = 0.9998, 0.0002
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"label": "POSITIVE", "score": pos},
			{"label": "NEGATIVE", "score": neg},
		})
	})

	srv := &http.Server{Addr: net.JoinHostPort(host, port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Wait for SIGTERM then shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
