package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Shimmur/legacy-app/event"
	"github.com/Shimmur/legacy-app/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Shimmur/legacy-app"

// An App owns everything the HTTP handlers touch. There is no package-level
// state; tests build their own App.
type App struct {
	generator *event.Generator
	store     *metrics.Store
	appender  Appender
	tracer    trace.Tracer
}

func NewApp(generator *event.Generator, store *metrics.Store, appender Appender) *App {
	return &App{
		generator: generator,
		store:     store,
		appender:  appender,
		tracer:    otel.Tracer(tracerName),
	}
}

// Router wires up all the routes. The Prometheus handler is optional.
func (a *App) Router(promHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logRequests)

	r.Get("/", a.handleRoot)
	r.Get("/health", a.handleHealth)
	r.Post("/generate-log", a.handleGenerateLog)
	r.Get("/metrics", a.handleMetrics)

	if promHandler != nil {
		r.Method(http.MethodGet, "/metrics/prometheus", promHandler)
	}

	return r
}

// GenerateLog runs a single event through generate, record and append, in that
// order, inside one span. The counters are not rolled back when the append
// fails: the event still happened, we just couldn't write it down.
func (a *App) GenerateLog(ctx context.Context) (string, error) {
	_, span := a.tracer.Start(ctx, "GenerateLog")
	defer span.End()

	entry, kind := a.generator.Generate()
	line := entry.String()

	span.SetAttributes(
		attribute.String("event.kind", string(kind)),
		attribute.Int("order.id", entry.OrderID),
		attribute.String("order.status", kind.Status()),
	)

	a.store.Record(kind)

	err := a.appender.Append(line)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write log")

		sc := span.SpanContext()
		log.WithFields(log.Fields{
			"trace_id": sc.TraceID().String(),
			"span_id":  sc.SpanID().String(),
			"order_id": entry.OrderID,
		}).Errorf("Failed to write generated log: %s", err)

		return "", err
	}

	return line, nil
}

func (a *App) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "Legacy App is running",
		"endpoints": []string{"/generate-log", "/metrics"},
	})
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleGenerateLog(w http.ResponseWriter, r *http.Request) {
	line, err := a.GenerateLog(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to write log",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Log generated",
		"log":     line,
	})
}

func (a *App) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.store.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		log.Warnf("Failed to encode response: %s", err)
	}
}

// logRequests logs each request at debug level once it has been served
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		log.Debugf("%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}
