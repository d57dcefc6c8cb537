package transport

import (
	"io"
	"sort"

	pkgerrors "github.com/pkg/errors"
	"go.bug.st/serial"
)

func openBugst(cfg Config) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, pkgerrors.Wrap(err, "failed to set read timeout")
	}
	return port, nil
}

// ListPorts returns the serial ports currently present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list serial ports")
	}
	sort.Strings(ports)
	return ports, nil
}
