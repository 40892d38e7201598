package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

var (
	baseURL = flag.String("url", "http://localhost:8081", "Base URL of the legacy app")
	rate    = flag.Int("rate", 10, "Log generation requests per second")
	count   = flag.Int("count", 0, "Stop after this many requests (0 runs forever)")
	verbose = flag.Bool("verbose", false, "Print every generated line to stdout")
)

type generateResponse struct {
	Message string `json:"message"`
	Log     string `json:"log"`
}

func generate(client *http.Client, url string) (string, error) {
	resp, err := client.Post(url, "application/json", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("got %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var body generateResponse
	err = json.NewDecoder(resp.Body).Decode(&body)
	if err != nil {
		return "", err
	}

	return body.Log, nil
}

// validateFlags rejects settings the request loop can't honor
func validateFlags(rate, count int) error {
	if rate < 1 {
		return errors.New("-rate must be at least 1")
	}
	if count < 0 {
		return errors.New("-count must not be negative")
	}

	return nil
}

func main() {
	flag.Parse()

	err := validateFlags(*rate, *count)
	if err != nil {
		log.Fatal(err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	url := strings.TrimSuffix(*baseURL, "/") + "/generate-log"
	logger := log.New(os.Stdout, "", 0)

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()

	var sent, failed int
	startTime := time.Now()

	for range ticker.C {
		sent++

		line, err := generate(client, url)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "Request %d failed: %s\n", sent, err)
		} else if *verbose {
			logger.Println(line)
		}

		// Print stats every second's worth of requests
		if sent%*rate == 0 {
			elapsed := time.Since(startTime)
			fmt.Fprintf(os.Stderr, "Stats: Sent %d requests (%d failed) in %.2fs (%.2f req/sec)\n",
				sent, failed, elapsed.Seconds(), float64(sent)/elapsed.Seconds())
		}

		if *count > 0 && sent >= *count {
			break
		}
	}
}
