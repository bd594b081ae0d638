// Command sandbox-runner evaluates notebook cell source in an isolated
// process, speaking the job message protocol with the coordinating
// server.
//
// In the default stdio mode the runner reads newline-delimited JSON
// job-request messages from stdin and writes job-result or job-error
// replies to stdout. It announces itself with a hello message carrying
// the token from AINB_SANDBOX_TOKEN and echoes that token on every
// reply. With -http the runner serves the same envelopes over HTTP
// instead: POST /job takes one request and returns its reply, for
// in-pod use behind the cluster launcher.
//
// Flags:
//
//	-http addr        serve HTTP on addr instead of stdio (e.g. ":8211")
//	-interpreter cmd  interpreter the source is handed to (default "python3 -c")
//	-max-concurrent n HTTP mode: evaluations in flight before 429 (default 3)
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/grothkopp/ainb/pkg/sandbox"
)

func main() {
	httpAddr := flag.String("http", "", `serve HTTP on this address instead of stdio (e.g. ":8211")`)
	interpreter := flag.String("interpreter", "python3 -c", "interpreter command the source is appended to")
	maxConcurrent := flag.Int("max-concurrent", 3, "HTTP mode: concurrent evaluations before replying 429")
	flag.Parse()

	command := strings.Fields(*interpreter)
	if len(command) == 0 {
		slog.Error("interpreter command is empty")
		os.Exit(1)
	}
	ev := &interpreterEvaluator{command: command}

	var err error
	if *httpAddr != "" {
		err = serveHTTP(*httpAddr, ev, int32(*maxConcurrent))
	} else {
		err = runStdio(os.Stdin, os.Stdout, os.Getenv(sandbox.TokenEnvVar), ev)
	}
	if err != nil {
		slog.Error("runner failed", "error", err)
		os.Exit(1)
	}
}

// evaluate runs one job and builds its reply envelope. A timeout hint
// on the request bounds the evaluation.
func evaluate(ctx context.Context, ev evaluator, req sandbox.Message) sandbox.Message {
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}
	value, err := ev.Evaluate(ctx, req.SourceText)
	if err != nil {
		return sandbox.NewJobError(req, err.Error())
	}
	return sandbox.NewJobResult(req, value)
}

// --- stdio mode ---

// runStdio drains job requests from in until it closes. Evaluations run
// concurrently so a superseded long job cannot starve the next
// generation; replies are serialized onto out one line at a time.
func runStdio(in io.Reader, out io.Writer, token string, ev evaluator) error {
	w := &lineWriter{w: out}

	if token != "" {
		if err := w.write(sandbox.NewHello(token)); err != nil {
			return fmt.Errorf("writing handshake: %w", err)
		}
	}

	var wg sync.WaitGroup
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), sandbox.MaxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg sandbox.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			slog.Warn("dropping unparseable input line", "error", err)
			continue
		}
		if msg.Kind != sandbox.KindJobRequest {
			continue
		}
		if err := msg.Validate(); err != nil {
			slog.Warn("dropping invalid job request", "error", err)
			continue
		}
		req := msg
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply := evaluate(context.Background(), ev, req)
			if err := w.write(reply); err != nil {
				slog.Error("writing reply failed", "error", err)
			}
		}()
	}
	wg.Wait()
	return scanner.Err()
}

// lineWriter serializes message lines onto a shared stream.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lineWriter) write(msg sandbox.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.w.Write(append(data, '\n'))
	return err
}

// --- HTTP mode ---

// serveHTTP exposes the evaluation protocol for in-pod use: one job
// envelope per POST /job, the reply envelope as the response body.
func serveHTTP(addr string, ev evaluator, maxConcurrent int32) error {
	rs := &runnerServer{ev: ev, maxConcurrent: maxConcurrent, startTime: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /job", rs.handleJob)
	mux.HandleFunc("GET /healthz", rs.handleHealthz)

	srv := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		// No write timeout: a job response takes as long as the
		// evaluation it carries.
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("runner starting", "addr", addr, "max_concurrent", maxConcurrent)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("runner shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type runnerServer struct {
	ev            evaluator
	maxConcurrent int32
	load          atomic.Int32
	startTime     time.Time
}

func (s *runnerServer) handleJob(w http.ResponseWriter, r *http.Request) {
	current := s.load.Add(1)
	defer s.load.Add(-1)
	if current > s.maxConcurrent {
		writeJSONError(w, http.StatusTooManyRequests,
			fmt.Sprintf("at capacity (%d/%d concurrent evaluations)", current, s.maxConcurrent))
		return
	}

	var req sandbox.Message
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, sandbox.MaxLineBytes)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Kind != sandbox.KindJobRequest {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unsupported message kind %q", req.Kind))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid job request: "+err.Error())
		return
	}

	reply := evaluate(r.Context(), s.ev, req)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reply)
}

func (s *runnerServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "healthy",
		"capacity":       s.maxConcurrent,
		"current_load":   s.load.Load(),
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
