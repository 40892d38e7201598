package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shimmur/legacy-app/event"
	"github.com/Shimmur/legacy-app/metrics"
	"github.com/Shimmur/legacy-app/reporter"
	"github.com/kelseyhightower/envconfig"
	director "github.com/relistan/go-director"
	"github.com/relistan/rubberneck"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	LogPath         string        `envconfig:"LOG_PATH" default:"/var/log/legacy-app/app.log"`
	HTTPPort        string        `envconfig:"HTTP_PORT" default:"8081"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	ServiceName     string        `envconfig:"SERVICE_NAME" default:"legacy-app"`
	Environment     string        `envconfig:"ENVIRONMENT" default:"dev"`
	SummaryInterval time.Duration `envconfig:"SUMMARY_INTERVAL" default:"1m"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
	OTLPEndpoint    string        `envconfig:"OTLP_ENDPOINT"`

	SyslogAddress    string        `envconfig:"SYSLOG_ADDRESS"`
	ShipRateLimit    int           `envconfig:"SHIP_RATE_LIMIT" default:"100"`
	ShipRateInterval time.Duration `envconfig:"SHIP_RATE_INTERVAL" default:"1s"`

	ReporterURL       string        `envconfig:"REPORTER_URL"`
	ReporterInsertKey string        `envconfig:"REPORTER_INSERT_KEY"`
	ReporterAccountID string        `envconfig:"REPORTER_ACCOUNT_ID"`
	ReporterInterval  time.Duration `envconfig:"REPORTER_INTERVAL" default:"1m"`
}

// noopDropCounter stands in when there is nowhere to report drops to
type noopDropCounter struct{}

func (noopDropCounter) Incr() {}

// configureShipping builds the Shipper pipeline: tail -> rate limit -> UDP
// syslog. The reporter is nil when none is configured.
func configureShipping(config *Config) (*Shipper, *reporter.LimitExceededReporter, error) {
	var (
		rptr        *reporter.LimitExceededReporter
		dropCounter DropCounter = noopDropCounter{}
		err         error
	)

	if config.ReporterURL != "" {
		rptr, err = reporter.NewLimitExceededReporter(
			config.ReporterURL, config.ReporterInsertKey, config.ReporterAccountID,
			config.ServiceName, config.ReporterInterval,
		)
		if err != nil {
			return nil, nil, err
		}
		dropCounter = rptr
	}

	syslogger, err := NewUDPSyslogger(map[string]string{
		"ServiceName": config.ServiceName,
		"Environment": config.Environment,
	}, config.SyslogAddress)
	if err != nil {
		return nil, nil, err
	}

	output, err := NewRateLimitingLogger(
		dropCounter, config.ShipRateLimit, config.ShipRateInterval, config.ServiceName, syslogger,
	)
	if err != nil {
		return nil, nil, err
	}

	return NewShipper(config.LogPath, output), rptr, nil
}

// startShipping creates the log file and opens the tail on it. On failure the
// shipper is stopped, which releases its output.
func startShipping(shipper *Shipper, appender *FileAppender) error {
	// The tail starts at the end of the file, so it must exist first
	err := appender.Touch()
	if err != nil {
		shipper.Stop()
		return err
	}

	err = shipper.Start()
	if err != nil {
		shipper.Stop()
		return err
	}

	return nil
}

// waitFor waits on fn, giving up after the timeout
func waitFor(fn func() error, timeout time.Duration) error {
	errChan := make(chan error, 1)
	go func() { errChan <- fn() }()

	select {
	case err := <-errChan:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("timed out after %s", timeout)
	}
}

func run(ctx context.Context, config *Config) error {
	appender := NewFileAppender(config.LogPath)
	err := appender.EnsureDir()
	if err != nil {
		return err
	}

	shutdownTracing, err := configureTracing(ctx, config.OTLPEndpoint, config.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()

		err := shutdownTracing(shutdownCtx)
		if err != nil {
			log.Warnf("Failed to flush traces: %s", err)
		}
	}()

	store := metrics.NewStore()
	promHandler, err := metrics.Handler(store)
	if err != nil {
		return fmt.Errorf("failed to register collector: %w", err)
	}

	app := NewApp(event.NewDefaultGenerator(), store, appender)

	var (
		shipper *Shipper
		rptr    *reporter.LimitExceededReporter
	)

	if config.SyslogAddress != "" {
		shipper, rptr, err = configureShipping(config)
		if err != nil {
			return err
		}

		err = startShipping(shipper, appender)
		if err != nil {
			return err
		}
	}

	// Bind before anything runs, so a port in use is a startup failure
	listener, err := net.Listen("tcp", ":"+config.HTTPPort)
	if err != nil {
		if shipper != nil {
			shipper.Stop()
		}
		return fmt.Errorf("failed to listen on port %s: %w", config.HTTPPort, err)
	}

	srv := &http.Server{
		Handler:           app.Router(promHandler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("%s is running. Logs will be written to %s", config.ServiceName, config.LogPath)
		log.Info("Available endpoints: /generate-log (POST), /metrics (GET)")

		err := srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	if config.SummaryInterval > 0 {
		summary := NewSummaryLogger(
			director.NewTimedLooper(director.FOREVER, config.SummaryInterval, make(chan error, 1)),
			store, config.ServiceName,
		)

		g.Go(func() error {
			go summary.Run()
			<-ctx.Done()
			summary.Stop()
			return nil
		})
	}

	if shipper != nil {
		shipper.Run()
		if rptr != nil {
			rptr.Run()
		}

		g.Go(func() error {
			<-ctx.Done()
			if rptr != nil {
				rptr.Stop()
			}
			shipper.Stop()
			return waitFor(shipper.Wait, config.ShutdownTimeout)
		})
	}

	return g.Wait()
}

func main() {
	var config Config
	err := envconfig.Process("legacy", &config)
	if err != nil {
		log.Fatal(err.Error())
	}
	rubberneck.Print(config)

	level, err := log.ParseLevel(config.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %s", config.LogLevel, err)
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, &config)
	if err != nil {
		log.Errorf("Exiting: %s", err)
		stop()
		os.Exit(1)
	}

	log.Info("Stopped gracefully")
}
