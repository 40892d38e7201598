package main

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/Nitro/sidecar-executor/loghooks"
	"github.com/Shimmur/legacy-app/event"
	limiter "github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"
	log "github.com/sirupsen/logrus"
)

// A LogOutput receives lines read back out of the application log
type LogOutput interface {
	Log(line string)
	Stop()
}

// A DropCounter is told about every line we refused to ship
type DropCounter interface {
	Incr()
}

// Matches the severity right after the timestamp, e.g. "[...] WARNING - "
var lineLevelRegexp = regexp.MustCompile(`^\[[^\]]*\] ([A-Z]+) - `)

// extractLineLevel pulls the severity out of a generated log line
func extractLineLevel(line string) (event.Level, bool) {
	matches := lineLevelRegexp.FindStringSubmatch(line)
	if len(matches) < 2 {
		return "", false
	}

	return event.Level(matches[1]), true
}

type UDPSyslogger struct {
	syslogger *log.Entry
}

// NewUDPSyslogger returns a LogOutput that relays each line as a JSON
// syslog message over UDP, with the labels attached as fields.
func NewUDPSyslogger(labels map[string]string, address string) (*UDPSyslogger, error) {
	syslogger := log.New()

	// UDP because nothing here is worth applying backpressure for
	hook, err := loghooks.NewUDPHook(address)
	if err != nil {
		return nil, fmt.Errorf("failed to add syslog hook for %s: %w", address, err)
	}

	syslogger.Hooks.Add(hook)
	syslogger.SetFormatter(&log.JSONFormatter{
		FieldMap: log.FieldMap{
			log.FieldKeyTime:  "Timestamp",
			log.FieldKeyLevel: "Level",
			log.FieldKeyMsg:   "Payload",
			log.FieldKeyFunc:  "Func",
		},
	})
	syslogger.SetOutput(io.Discard)

	fields := make(log.Fields, len(labels))
	for field, val := range labels {
		fields[field] = val
	}

	return &UDPSyslogger{
		syslogger: syslogger.WithFields(fields),
	}, nil
}

// Log sends the line at the logrus level matching its own severity. Lines
// we can't parse a level from go out as info.
func (sysl *UDPSyslogger) Log(line string) {
	if line == "" {
		return
	}

	level, _ := extractLineLevel(line)

	switch level {
	case event.LevelError:
		sysl.syslogger.Error(line)
	case event.LevelWarning:
		sysl.syslogger.Warn(line)
	default:
		sysl.syslogger.Info(line)
	}
}

// Stop would clean up any resources if we needed to manage any
func (sysl *UDPSyslogger) Stop() { /* noop */ }

// A RateLimitingLogger is a LogOutput that wraps another LogOutput, adding rate limiting
// capability
type RateLimitingLogger struct {
	limitStore  limiter.Store
	dropCounter DropCounter
	output      LogOutput
	limitKey    string
}

func NewRateLimitingLogger(dropCounter DropCounter, tokenLimit int,
	interval time.Duration, key string, output LogOutput) (*RateLimitingLogger, error) {

	if tokenLimit < 1 {
		return nil, fmt.Errorf("rate limit must be at least 1, got %d", tokenLimit)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("rate limit interval must be positive, got %s", interval)
	}

	store, err := memorystore.New(&memorystore.Config{
		// Number of tokens allowed per interval.
		Tokens: uint64(tokenLimit),

		// Interval until tokens reset.
		Interval: interval,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create rate limit store: %w", err)
	}

	return &RateLimitingLogger{
		limitStore:  store,
		dropCounter: dropCounter,
		output:      output,
		limitKey:    key,
	}, nil
}

// isRateLimited takes a token for the tracking key and reports whether we
// were out of them
func (logger *RateLimitingLogger) isRateLimited() bool {
	limit, remaining, reset, ok, err := logger.limitStore.Take(context.Background(), logger.limitKey)
	log.Debugf("Checking rate limit: %d %d %d %t", limit, remaining, reset, ok)
	if err != nil {
		log.Warnf("Unable to fetch rate limit for %v", logger.limitKey)
		return true // Rate limit it since we can't track
	}

	return !ok
}

// Log is a pass-through to the downstream LogOutput, but checks rate limiting status
func (logger *RateLimitingLogger) Log(line string) {
	if !logger.isRateLimited() {
		logger.output.Log(line)
		return
	}

	logger.dropCounter.Incr()
}

// Stop cleans up our resources on shutdown
func (logger *RateLimitingLogger) Stop() {
	_ = logger.limitStore.Close(context.Background())
	logger.output.Stop()
}
