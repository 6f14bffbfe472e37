package main

import (
	"os"
	"time"
)

// filePort adapts an *os.File to hal.Port. No third-party serial library
// appears anywhere in the retrieval corpus this daemon was built from, so
// serial-bridge mode opens the configured path as a plain file; a real
// deployment swaps this for a proper serial library's Port implementation
// without touching pkg/hal, which never imports one directly.
type filePort struct {
	f *os.File
}

func openSerialPort(path string) (*filePort, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &filePort{f: f}, nil
}

func (p *filePort) Read(b []byte) (int, error)  { return p.f.Read(b) }
func (p *filePort) Write(b []byte) (int, error) { return p.f.Write(b) }

// SetReadDeadline is a no-op: a plain *os.File has no deadline support.
// hal.Bridge still enforces its own timeout around each request.
func (p *filePort) SetReadDeadline(time.Time) error { return nil }
