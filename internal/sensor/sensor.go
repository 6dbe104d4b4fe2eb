// Package sensor reads line-oriented text from the arena's serial sensors.
package sensor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/zjrosen/arena/internal/log"
)

// LineReader yields one trimmed line per call. An empty line with a nil
// error means nothing arrived before the read timeout.
type LineReader interface {
	ReadLine() (string, error)
	Close() error
}

// SerialConfig selects and configures a serial port.
type SerialConfig struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
}

var errReadTimeout = errors.New("serial read timeout")

type lineReader struct {
	rc  io.ReadCloser
	buf *bufio.Reader
}

// NewLineReader wraps any stream in a LineReader.
func NewLineReader(rc io.ReadCloser) LineReader {
	return &lineReader{rc: rc, buf: bufio.NewReader(rc)}
}

func (r *lineReader) ReadLine() (string, error) {
	line, err := r.buf.ReadString('\n')
	line = strings.TrimSpace(line)
	switch {
	case err == nil:
		return line, nil
	case errors.Is(err, errReadTimeout):
		return line, nil
	case errors.Is(err, io.EOF) && line != "":
		return line, nil
	default:
		return "", err
	}
}

func (r *lineReader) Close() error {
	return r.rc.Close()
}

// timeoutReader turns the zero-byte reads a serial port returns on timeout
// into errReadTimeout so the buffered reader gives up on the current line.
type timeoutReader struct {
	serial.Port
}

func (t timeoutReader) Read(p []byte) (int, error) {
	n, err := t.Port.Read(p)
	if n == 0 && err == nil {
		return 0, errReadTimeout
	}
	return n, err
}

// OpenSerial opens cfg.Port and returns a LineReader over it.
func OpenSerial(cfg SerialConfig) (LineReader, error) {
	baud := cfg.BaudRate
	if baud <= 0 {
		baud = 9600
	}
	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", cfg.Port, err)
	}
	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("setting read timeout on %s: %w", cfg.Port, err)
		}
	}
	log.Debug(log.CatSensor, "serial port opened", "port", cfg.Port, "baud", baud)
	return NewLineReader(timeoutReader{Port: port}), nil
}
