package main

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Shimmur/legacy-app/event"
	"github.com/Shimmur/legacy-app/metrics"
	. "github.com/smartystreets/goconvey/convey"
)

var generatedLinePattern = regexp.MustCompile(
	`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] (INFO|ERROR|WARNING) - .+ \(Order ID: \d{4,4}\)$`,
)

func newTestApp(appender Appender) (*App, http.Handler) {
	store := metrics.NewStore()
	generator := event.NewGenerator(rand.NewSource(7), time.Now)
	app := NewApp(generator, store, appender)

	promHandler, err := metrics.Handler(store)
	if err != nil {
		panic(err)
	}

	return app, app.Router(promHandler)
}

func doRequest(handler http.Handler, method, path string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(method, path, nil))
	return recorder
}

func getMetrics(handler http.Handler) metrics.Snapshot {
	var snap metrics.Snapshot
	recorder := doRequest(handler, "GET", "/metrics")
	So(recorder.Code, ShouldEqual, http.StatusOK)
	So(json.Unmarshal(recorder.Body.Bytes(), &snap), ShouldBeNil)
	return snap
}

func Test_Routes(t *testing.T) {
	Convey("The HTTP surface", t, func() {
		dir, err := os.MkdirTemp("", "legacyServer*")
		So(err, ShouldBeNil)
		Reset(func() { _ = os.RemoveAll(dir) })

		logPath := filepath.Join(dir, "legacy-app", "app.log")
		_, handler := newTestApp(NewFileAppender(logPath))

		Convey("GET / describes the service", func() {
			recorder := doRequest(handler, "GET", "/")

			var body struct {
				Message   string   `json:"message"`
				Endpoints []string `json:"endpoints"`
			}
			So(recorder.Code, ShouldEqual, http.StatusOK)
			So(recorder.Header().Get("Content-Type"), ShouldEqual, "application/json")
			So(json.Unmarshal(recorder.Body.Bytes(), &body), ShouldBeNil)
			So(body.Message, ShouldEqual, "Legacy App is running")
			So(body.Endpoints, ShouldResemble, []string{"/generate-log", "/metrics"})
		})

		Convey("GET /health reports ok", func() {
			recorder := doRequest(handler, "GET", "/health")

			So(recorder.Code, ShouldEqual, http.StatusOK)
			So(recorder.Body.String(), ShouldContainSubstring, `"status":"ok"`)
		})

		Convey("GET /metrics starts at zero", func() {
			So(getMetrics(handler), ShouldResemble, metrics.Snapshot{})
		})

		Convey("GET /metrics is idempotent", func() {
			doRequest(handler, "POST", "/generate-log")

			first := doRequest(handler, "GET", "/metrics").Body.String()
			for i := 0; i < 5; i++ {
				So(doRequest(handler, "GET", "/metrics").Body.String(), ShouldEqual, first)
			}
		})

		Convey("GET /metrics uses the expected keys", func() {
			var body map[string]int
			recorder := doRequest(handler, "GET", "/metrics")
			So(json.Unmarshal(recorder.Body.Bytes(), &body), ShouldBeNil)

			So(len(body), ShouldEqual, 4)
			for _, key := range []string{"orders_processed", "payment_failures", "out_of_stock_failures", "total_errors"} {
				_, ok := body[key]
				So(ok, ShouldBeTrue)
			}
		})

		Convey("POST /generate-log", func() {
			recorder := doRequest(handler, "POST", "/generate-log")

			var body struct {
				Message string `json:"message"`
				Log     string `json:"log"`
			}
			So(recorder.Code, ShouldEqual, http.StatusOK)
			So(json.Unmarshal(recorder.Body.Bytes(), &body), ShouldBeNil)

			Convey("returns the generated line", func() {
				So(body.Message, ShouldEqual, "Log generated")
				So(generatedLinePattern.MatchString(body.Log), ShouldBeTrue)
			})

			Convey("appends the same line to the file", func() {
				data, err := os.ReadFile(logPath)
				So(err, ShouldBeNil)
				So(string(data), ShouldEqual, body.Log+"\n")
			})

			Convey("bumps exactly one base counter", func() {
				snap := getMetrics(handler)

				So(snap.OrdersProcessed+snap.PaymentFailures+snap.OutOfStockFailures, ShouldEqual, 1)
				So(snap.TotalErrors, ShouldEqual, snap.PaymentFailures+snap.OutOfStockFailures)

				switch {
				case strings.Contains(body.Log, "] INFO - "):
					So(snap.OrdersProcessed, ShouldEqual, 1)
				case strings.Contains(body.Log, "] ERROR - "):
					So(snap.PaymentFailures, ShouldEqual, 1)
				case strings.Contains(body.Log, "] WARNING - "):
					So(snap.OutOfStockFailures, ShouldEqual, 1)
				}
			})
		})

		Convey("N sequential generations keep the counters consistent", func() {
			for i := 0; i < 50; i++ {
				So(doRequest(handler, "POST", "/generate-log").Code, ShouldEqual, http.StatusOK)
			}

			snap := getMetrics(handler)
			So(snap.OrdersProcessed+snap.PaymentFailures+snap.OutOfStockFailures, ShouldEqual, 50)
			So(snap.TotalErrors, ShouldEqual, snap.PaymentFailures+snap.OutOfStockFailures)
		})

		Convey("100 concurrent generations lose no updates", func() {
			var wg sync.WaitGroup
			codes := make(chan int, 100)

			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					codes <- doRequest(handler, "POST", "/generate-log").Code
				}()
			}
			wg.Wait()
			close(codes)

			for code := range codes {
				So(code, ShouldEqual, http.StatusOK)
			}

			snap := getMetrics(handler)
			So(snap.OrdersProcessed+snap.PaymentFailures+snap.OutOfStockFailures, ShouldEqual, 100)
			So(snap.TotalErrors, ShouldEqual, snap.PaymentFailures+snap.OutOfStockFailures)

			data, err := os.ReadFile(logPath)
			So(err, ShouldBeNil)
			lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
			So(len(lines), ShouldEqual, 100)
			for _, line := range lines {
				So(generatedLinePattern.MatchString(line), ShouldBeTrue)
			}
		})

		Convey("GET /metrics/prometheus mirrors the JSON counters", func() {
			for i := 0; i < 10; i++ {
				doRequest(handler, "POST", "/generate-log")
			}
			snap := getMetrics(handler)

			body := doRequest(handler, "GET", "/metrics/prometheus").Body.String()
			So(body, ShouldContainSubstring, "orders_processed_total "+strconv.FormatInt(snap.OrdersProcessed, 10))
			So(body, ShouldContainSubstring, "orders_failed_total "+strconv.FormatInt(snap.TotalErrors, 10))
		})

		Convey("rejects the wrong methods", func() {
			So(doRequest(handler, "GET", "/generate-log").Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(doRequest(handler, "POST", "/metrics").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func Test_GenerateLogFailure(t *testing.T) {
	Convey("When the log can't be written", t, func() {
		appender := &failingAppender{}
		_, handler := newTestApp(appender)

		var recorder *httptest.ResponseRecorder
		capture := LogCapture(func() {
			recorder = doRequest(handler, "POST", "/generate-log")
		})

		Convey("POST /generate-log returns a server error without the line", func() {
			So(recorder.Code, ShouldEqual, http.StatusInternalServerError)
			So(recorder.Body.String(), ShouldNotContainSubstring, `"log"`)
			So(recorder.Body.String(), ShouldContainSubstring, "failed to write log")
			So(capture, ShouldContainSubstring, "intentional test error")
			So(appender.Calls, ShouldEqual, 1)
		})

		Convey("the metrics still count the event", func() {
			snap := getMetrics(handler)

			So(snap.OrdersProcessed+snap.PaymentFailures+snap.OutOfStockFailures, ShouldEqual, 1)
		})
	})

	Convey("When LOG_PATH is unwritable", t, func() {
		dir, err := os.MkdirTemp("", "legacyServer*")
		So(err, ShouldBeNil)
		Reset(func() { _ = os.RemoveAll(dir) })

		blocker := filepath.Join(dir, "blocker")
		So(os.WriteFile(blocker, []byte{}, 0644), ShouldBeNil)
		_, handler := newTestApp(NewFileAppender(filepath.Join(blocker, "app.log")))

		_ = LogCapture(func() {
			So(doRequest(handler, "POST", "/generate-log").Code, ShouldEqual, http.StatusInternalServerError)
		})

		So(doRequest(handler, "GET", "/metrics").Code, ShouldEqual, http.StatusOK)
	})
}
