package serialplot

import (
	"fmt"

	gobug "go.bug.st/serial"
)

// allow tests to override the device layer
var openPort = func(name string, mode *gobug.Mode) (gobug.Port, error) { return gobug.Open(name, mode) }

// Port is the part of a device handle the acquisition loop uses. A Read that
// returns (0, nil) means the read timeout elapsed with no data.
type Port interface {
	Read(p []byte) (int, error)
	Close() error
}

// Opener opens a device for one connection attempt.
type Opener func(cfg ConnectionConfig) (Port, error)

// OpenSerial is the default Opener. Framing is fixed at 8N1; only the baud
// rate is selectable.
func OpenSerial(cfg ConnectionConfig) (Port, error) {
	mode := &gobug.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   gobug.NoParity,
		StopBits: gobug.OneStopBit,
	}

	p, err := openPort(cfg.PortName, mode)
	if err != nil {
		return nil, err
	}
	if err = p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		if e := p.Close(); e != nil {
			err = fmt.Errorf("%w (close: %v)", err, e)
		}
		return nil, fmt.Errorf("setting read timeout: %w", err)
	}
	return p, nil
}
