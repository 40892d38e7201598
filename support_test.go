package main

import (
	"bytes"
	"errors"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
)

// LogCapture logs for async testing where we can't get a nice handle on things
func LogCapture(fn func()) string {
	capture := &bytes.Buffer{}
	log.SetOutput(capture)
	fn()
	log.SetOutput(os.Stdout)

	return capture.String()
}

// mockLogOutput implements the LogOutput interface, for testing
type mockLogOutput struct {
	sync.Mutex

	WasCalled     bool
	StopWasCalled bool
	CallCount     int
	LastLogged    string
	Lines         []string
}

func (m *mockLogOutput) Log(line string) {
	m.Lock()
	defer m.Unlock()

	m.WasCalled = true
	m.CallCount++
	m.LastLogged = line
	m.Lines = append(m.Lines, line)
}

func (m *mockLogOutput) Stop() {
	m.Lock()
	defer m.Unlock()

	m.StopWasCalled = true
}

func (m *mockLogOutput) Count() int {
	m.Lock()
	defer m.Unlock()

	return m.CallCount
}

// mockDropCounter implements DropCounter
type mockDropCounter struct {
	sync.Mutex
	Count int
}

func (m *mockDropCounter) Incr() {
	m.Lock()
	defer m.Unlock()
	m.Count++
}

// failingAppender is an Appender that always errors
type failingAppender struct {
	Calls int
}

func (a *failingAppender) Append(line string) error {
	a.Calls++
	return errors.New("intentional test error")
}

// recordingAppender is an Appender that keeps lines in memory
type recordingAppender struct {
	sync.Mutex
	Lines []string
}

func (a *recordingAppender) Append(line string) error {
	a.Lock()
	defer a.Unlock()

	a.Lines = append(a.Lines, line)
	return nil
}
