// Package transport provides the serial line transport used to talk to the
// tracking motor controller.
package transport

import (
	"bytes"
	"context"
	"io"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DriverBugst = "bugst"
	DriverTarm  = "tarm"

	DefaultBaudRate    = 9600
	DefaultReadTimeout = 100 * time.Millisecond

	// maxPending bounds the bytes buffered while waiting for a terminator.
	maxPending = 4096
)

// Transport is a bidirectional line connection to the controller. It is owned
// by a single calibration session and must not be shared.
type Transport interface {
	// Transmit writes line as-is. The caller supplies the terminator.
	Transmit(line string) error
	// ReceiveUntil blocks until terminator is read and returns the line
	// including the terminator. It returns ctx.Err() once ctx is done.
	ReceiveUntil(ctx context.Context, terminator string) (string, error)
	Close() error
}

// Config selects and configures a serial port.
type Config struct {
	Port     string
	BaudRate int
	Driver   string
	// ReadTimeout is how long a single driver read may block. It bounds how
	// quickly ReceiveUntil notices a canceled context.
	ReadTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaudRate <= 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.Driver == "" {
		c.Driver = DriverBugst
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	return c
}

// Open opens the port described by cfg with the selected driver.
func Open(cfg Config) (Transport, error) {
	cfg = cfg.withDefaults()
	if cfg.Port == "" {
		return nil, pkgerrors.New("no serial port configured")
	}

	var (
		port io.ReadWriteCloser
		err  error
	)
	switch cfg.Driver {
	case DriverBugst:
		port, err = openBugst(cfg)
	case DriverTarm:
		port, err = openTarm(cfg)
	default:
		return nil, pkgerrors.Errorf("unknown serial driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open serial port %s", cfg.Port)
	}

	logrus.WithFields(logrus.Fields{
		"port":     cfg.Port,
		"baudRate": cfg.BaudRate,
		"driver":   cfg.Driver,
	}).Debug("serial port opened")

	return NewLineTransport(port, cfg.Port), nil
}

// LineTransport implements Transport on top of a byte stream whose Read
// returns (0, nil) when its read timeout expires.
type LineTransport struct {
	port    io.ReadWriteCloser
	name    string
	pending []byte
	chunk   []byte
}

var _ Transport = &LineTransport{}

// NewLineTransport wraps port. name is only used for logging.
func NewLineTransport(port io.ReadWriteCloser, name string) *LineTransport {
	return &LineTransport{
		port:  port,
		name:  name,
		chunk: make([]byte, 256),
	}
}

func (t *LineTransport) Transmit(line string) error {
	logrus.WithField("port", t.name).Tracef("tx %q", line)
	if _, err := io.WriteString(t.port, line); err != nil {
		return pkgerrors.Wrapf(err, "failed to write to %s", t.name)
	}
	return nil
}

func (t *LineTransport) ReceiveUntil(ctx context.Context, terminator string) (string, error) {
	term := []byte(terminator)
	for {
		if i := bytes.Index(t.pending, term); i >= 0 {
			end := i + len(term)
			line := string(t.pending[:end])
			t.pending = t.pending[end:]
			logrus.WithField("port", t.name).Tracef("rx %q", line)
			return line, nil
		}

		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := t.port.Read(t.chunk)
		if n > 0 {
			t.pending = append(t.pending, t.chunk[:n]...)
			if len(t.pending) > maxPending && bytes.Index(t.pending, term) < 0 {
				logrus.WithField("port", t.name).Warnf("discarding %d bytes without line terminator", len(t.pending))
				// Keep a possible partial terminator at the tail.
				t.pending = append(t.pending[:0], t.pending[len(t.pending)-len(term)+1:]...)
			}
		}
		if err != nil {
			return "", pkgerrors.Wrapf(err, "failed to read from %s", t.name)
		}
	}
}

func (t *LineTransport) Close() error {
	if err := t.port.Close(); err != nil {
		return pkgerrors.Wrapf(err, "failed to close %s", t.name)
	}
	logrus.WithField("port", t.name).Debug("serial port closed")
	return nil
}
