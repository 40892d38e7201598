package reporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	loghttp "github.com/motemen/go-loghttp"
	director "github.com/relistan/go-director"
	log "github.com/sirupsen/logrus"
)

// EventType is the name the dropped-line events are recorded under upstream
const EventType = "LegacyAppShipLimitExceeded"

// A LimitExceededReporter tracks the number of log lines the shipper has
// dropped because of rate limiting, and reports them to an Insights-style
// events API on every tick of its looper.
type LimitExceededReporter struct {
	client      *http.Client
	BaseURL     string
	InsertKey   string
	AccountID   string
	ServiceName string

	droppedCount uint64
	ReportLooper director.Looper
	hostname     string
}

// NewLimitExceededReporter returns a properly configured reporter. Hostname
// lookup failures are returned rather than being fatal.
func NewLimitExceededReporter(url, insertKey, accountID, serviceName string,
	interval time.Duration) (*LimitExceededReporter, error) {

	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("unable to determine hostname: %w", err)
	}

	client := cleanhttp.DefaultClient()
	client.Transport = &loghttp.Transport{
		Transport: client.Transport,
		LogRequest: func(req *http.Request) {
			log.Debugf("--> %s %s", req.Method, req.URL)
		},
		LogResponse: func(resp *http.Response) {
			log.Debugf("<-- %d %s", resp.StatusCode, resp.Request.URL)
		},
	}

	return &LimitExceededReporter{
		client:       client,
		BaseURL:      url,
		InsertKey:    insertKey,
		AccountID:    accountID,
		ServiceName:  serviceName,
		ReportLooper: director.NewTimedLooper(director.FOREVER, interval, make(chan error, 1)),
		hostname:     hostname,
	}, nil
}

// Incr atomically increments the current count
func (r *LimitExceededReporter) Incr() {
	atomic.AddUint64(&r.droppedCount, 1)
}

// Count returns the number of drops not yet reported
func (r *LimitExceededReporter) Count() uint64 {
	return atomic.LoadUint64(&r.droppedCount)
}

// Run starts up a background goroutine that reports on each looper tick
func (r *LimitExceededReporter) Run() {
	log.Infof("Starting up dropped-line reporter for account '%s'", r.AccountID)

	url := fmt.Sprintf("%s/%s/events", r.BaseURL, r.AccountID)

	go r.ReportLooper.Loop(func() error {
		// Subtract what we read rather than zeroing, so increments that land
		// in between are kept for the next report.
		count := atomic.LoadUint64(&r.droppedCount)
		atomic.AddUint64(&r.droppedCount, 0-count)

		if count > 0 {
			err := r.sendEvent(url, count)
			// We _don't_ want to exit on error
			if err != nil {
				log.Errorf("Error reporting dropped lines: %s", err)
			}
		}

		return nil
	})
}

// Stop quits the report loop
func (r *LimitExceededReporter) Stop() {
	r.ReportLooper.Quit()
}

// sendEvent serializes JSON and posts it to the events endpoint
func (r *LimitExceededReporter) sendEvent(url string, count uint64) error {
	data, err := json.Marshal(struct {
		Time         string
		Hostname     string
		ServiceName  string
		DroppedCount uint64
		EventType    string `json:"eventType"`
	}{
		Time:         time.Now().UTC().Format(time.RFC3339),
		Hostname:     r.hostname,
		ServiceName:  r.ServiceName,
		DroppedCount: count,
		EventType:    EventType,
	})
	if err != nil {
		return fmt.Errorf("unable to encode JSON event: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("unable to create http request: %w", err)
	}
	req.Header.Add("X-Insert-Key", r.InsertKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed making HTTP request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("bad response from %s: %s", url, string(body))
	}

	return nil
}
