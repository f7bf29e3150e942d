// Package server exposes pipeline execution over HTTP for the node editor.
//
// Every endpoint answers 200; failures are reported in the JSON body.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/ravi-parthasarathy/aigen/pkg/pipeline"
	"github.com/ravi-parthasarathy/aigen/pkg/pipeline/handlers"
)

const maxBodyBytes = 4 << 20

// Options configures a Server.
type Options struct {
	Chat             handlers.ChatCallConfig
	AllowedOrigins   []string
	BatchConcurrency int // values run at once by /batch; 1 when < 1
	Metrics          *Metrics
}

// Server runs instruction documents posted by clients.
type Server struct {
	opts    Options
	metrics *Metrics
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.BatchConcurrency < 1 {
		opts.BatchConcurrency = 1
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	return &Server{opts: opts, metrics: opts.Metrics}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]bool{"ok": true})
	})
	r.Post("/run", s.handleRun)
	r.Post("/batch", s.handleBatch)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	return r
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && slices.Contains(s.opts.AllowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ─── Wire types ───────────────────────────────────────────────────────────────

type runRequest struct {
	YAMLText string `json:"yaml_text"`
}

type batchRequest struct {
	YAMLText string `json:"yaml_text"`
	VarName  string `json:"var_name"`
	Values   []any  `json:"values"`
}

type errorBody struct {
	Message   string `json:"message"`
	Traceback string `json:"traceback"`
	Logs      string `json:"logs"`
	Stderr    string `json:"stderr"`
}

type runResponse struct {
	OK      bool           `json:"ok"`
	Outputs map[string]any `json:"outputs,omitempty"`
	Logs    string         `json:"logs"`
	Errors  string         `json:"errors"`
}

type failureResponse struct {
	OK    bool      `json:"ok"`
	Error errorBody `json:"error"`
}

type batchItem struct {
	Index     int            `json:"index"`
	OK        bool           `json:"ok"`
	Outputs   map[string]any `json:"outputs,omitempty"`
	Error     string         `json:"error,omitempty"`
	Traceback string         `json:"traceback,omitempty"`
}

type batchResponse struct {
	OK      bool        `json:"ok"`
	Results []batchItem `json:"results"`
	Logs    string      `json:"logs"`
	Errors  string      `json:"errors"`
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, err, "", "")
		return
	}
	out := s.execute(r.Context(), req.YAMLText)
	s.metrics.observeRun("run", out.err)
	if out.err != nil {
		writeFailure(w, out.err, out.logs, out.errors)
		return
	}
	if err := encodable(out.outputs); err != nil {
		writeFailure(w, err, out.logs, out.errors)
		return
	}
	writeJSON(w, runResponse{OK: true, Outputs: out.outputs, Logs: out.logs, Errors: out.errors})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, err, "", "")
		return
	}
	if req.VarName == "" {
		writeFailure(w, errors.New("var_name is required"), "", "")
		return
	}

	runs := make([]execution, len(req.Values))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(s.opts.BatchConcurrency)
	for i, v := range req.Values {
		text := substitute(req.YAMLText, req.VarName, fmt.Sprint(v))
		g.Go(func() error {
			runs[i] = s.execute(ctx, text)
			s.metrics.observeRun("batch", runs[i].err)
			return nil
		})
	}
	_ = g.Wait()

	resp := batchResponse{OK: true, Results: make([]batchItem, len(runs))}
	var logs, errs strings.Builder
	for i, run := range runs {
		err := run.err
		if err == nil {
			err = encodable(run.outputs)
		}
		item := batchItem{Index: i, OK: err == nil}
		if err != nil {
			item.Error = err.Error()
			item.Traceback = traceback(err)
		} else {
			item.Outputs = run.outputs
		}
		resp.Results[i] = item
		logs.WriteString(run.logs)
		errs.WriteString(run.errors)
	}
	resp.Logs, resp.Errors = logs.String(), errs.String()
	writeJSON(w, resp)
}

// execution is the outcome of running one instruction document.
type execution struct {
	outputs map[string]any
	logs    string // PrintVariable output
	errors  string // engine log lines
	err     error
}

func (s *Server) execute(ctx context.Context, yamlText string) execution {
	var logs, errs bytes.Buffer
	p, err := pipeline.ParseYAML([]byte(yamlText))
	if err != nil {
		return execution{err: err}
	}
	logger := slog.New(slog.NewTextHandler(&errs, nil))
	chatCfg := s.opts.Chat
	chatCfg.Logger = logger
	reg := handlers.NewDefaultRegistry(handlers.Options{Out: &logs, Chat: chatCfg})
	pctx, err := pipeline.Run(ctx, p, reg,
		pipeline.WithLogger(logger),
		pipeline.WithNodeHook(s.metrics.NodeHook()),
	)
	if err != nil {
		logger.Error("pipeline failed", "error", err)
	}
	return execution{outputs: pctx.Snapshot(), logs: logs.String(), errors: errs.String(), err: err}
}

// substitute replaces the literal placeholders ${name} and {{name}} with value.
func substitute(text, name, value string) string {
	return strings.NewReplacer("${"+name+"}", value, "{{"+name+"}}", value).Replace(text)
}

// traceback lists the wrapped error chain, outermost first, one per line.
func traceback(err error) string {
	var lines []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		lines = append(lines, fmt.Sprintf("%T: %s", e, e.Error()))
	}
	return strings.Join(lines, "\n")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeFailure(w http.ResponseWriter, err error, logs, stderr string) {
	writeJSON(w, failureResponse{Error: errorBody{
		Message:   err.Error(),
		Traceback: traceback(err),
		Logs:      logs,
		Stderr:    stderr,
	}})
}

// encodable reports whether the outputs can be sent as JSON.
func encodable(outputs map[string]any) error {
	if _, err := json.Marshal(outputs); err != nil {
		return fmt.Errorf("encode outputs: %w", err)
	}
	return nil
}

// writeJSON encodes v before touching the response, so an encoding failure
// still yields a failure body.
func writeJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode response", "error", err)
		err = fmt.Errorf("encode response: %w", err)
		body, _ = json.Marshal(failureResponse{Error: errorBody{Message: err.Error(), Traceback: traceback(err)}})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(append(body, '\n')); err != nil {
		slog.Error("write response", "error", err)
	}
}
