package main

import (
	"fmt"
	"io"

	"github.com/nxadm/tail"
	director "github.com/relistan/go-director"
	log "github.com/sirupsen/logrus"
)

// A Shipper follows the application log file and hands every new line to a
// LogOutput, the way a collector sidecar would.
type Shipper struct {
	Filename string
	Poll     bool

	logTail *tail.Tail
	output  LogOutput
	looper  director.Looper
}

// NewShipper returns a properly configured Shipper for the file
func NewShipper(filename string, output LogOutput) *Shipper {
	return &Shipper{
		Filename: filename,
		output:   output,
		looper:   director.NewFreeLooper(director.ONCE, make(chan error, 1)),
	}
}

// Start opens a tail on the file, positioned at its current end. Lines that
// were already in the file before startup are not shipped again.
func (s *Shipper) Start() error {
	tailed, err := tail.TailFile(s.Filename, tail.Config{
		ReOpen:   true,
		Follow:   true,
		Poll:     s.Poll,
		Logger:   log.StandardLogger(),
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
	})
	if err != nil {
		return fmt.Errorf("failed to tail %s: %w", s.Filename, err)
	}

	log.Infof("Adding tail on %s", s.Filename)
	s.logTail = tailed

	return nil
}

// Run processes lines until the tail is stopped. It does not block.
func (s *Shipper) Run() {
	go s.looper.Loop(func() error {
		for line := range s.logTail.Lines {
			if line.Err != nil {
				log.Warnf("Error reading %s: %s", s.Filename, line.Err)
				continue
			}
			s.output.Log(line.Text)
		}
		log.Infof("Closing tail on %s", s.Filename)
		return nil
	})
}

// Wait blocks until Run has finished processing
func (s *Shipper) Wait() error {
	return s.looper.Wait()
}

// Stop closes the tail, which ends Run, and stops the output
func (s *Shipper) Stop() {
	if s.logTail != nil {
		err := s.logTail.Stop()
		if err != nil {
			log.Errorf("Failed to stop tail on %s: %s", s.Filename, err)
		}

		// Remove any inotify watches
		s.logTail.Cleanup()
	}

	s.output.Stop()
}
