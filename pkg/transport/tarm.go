package transport

import (
	"errors"
	"io"

	"github.com/tarm/serial"
)

// tarmPort adapts tarm/serial, which reports an expired read timeout as
// (0, io.EOF) on posix systems.
type tarmPort struct {
	*serial.Port
}

func (p tarmPort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}
	return n, err
}

func openTarm(cfg Config) (io.ReadWriteCloser, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.BaudRate,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	return tarmPort{port}, nil
}
