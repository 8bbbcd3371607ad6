// Serial tether to the quantizer hardware
//
// The module's controller exposes its ADC samples and accepts DAC codes
// over a raw serial link (or a unix socket when tethered to the mock
// hardware endpoint). This file owns the file descriptor plumbing; the
// frame protocol lives in frame.go.
//
// Copyright (C) 2026  Go Port Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

//go:build linux || darwin

package driver

import (
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"cvquant-go/pkg/errors"
)

// SerialConfig holds tether connection configuration.
type SerialConfig struct {
	// Device path: a tty (/dev/ttyACM0) or, with the unix: prefix, a
	// socket path to the mock hardware endpoint.
	Device string

	// Baud rate (default 115200). Ignored for sockets.
	BaudRate int

	// Connect retry window for sockets (default 10 seconds).
	ConnectTimeout time.Duration

	// Channels carried per frame.
	Channels int
}

// Serial is a Driver over a serial or socket tether.
type Serial struct {
	mu     sync.Mutex
	port   *port
	tether *Tether
}

// OpenSerial connects to the hardware tether.
func OpenSerial(cfg SerialConfig) (*Serial, error) {
	if cfg.Device == "" {
		return nil, errors.ConfigValidationError("driver", "device", "device path required")
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	var (
		p   *port
		err error
	)
	if path, ok := strings.CutPrefix(cfg.Device, "unix:"); ok {
		p, err = openSocket(path, cfg.ConnectTimeout)
	} else {
		p, err = openPort(cfg.Device, cfg.BaudRate)
	}
	if err != nil {
		return nil, err
	}

	t, err := NewTether(p, cfg.Channels)
	if err != nil {
		p.Close()
		return nil, err
	}
	return &Serial{port: p, tether: t}, nil
}

// ReadSamples implements SampleSource.
func (s *Serial) ReadSamples(samples []int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tether.ReadSamples(samples)
}

// WriteCodes implements CodeSink.
func (s *Serial) WriteCodes(codes []uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tether.WriteCodes(codes)
}

// Close implements Driver.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}

// port is a raw file descriptor with io.ReadWriter semantics.
type port struct {
	fd     int
	device string
	closed bool
}

// openPort opens and configures a tty in raw 8N1 mode.
func openPort(device string, baud int) (*port, error) {
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, errors.DriverIOError("open", fmt.Errorf("%s: %w", device, err))
	}

	termios, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		unix.Close(fd)
		return nil, errors.DriverIOError("get termios", err)
	}

	// Raw mode: no input/output processing, 8N1, reads block per
	// character with a 100ms inter-character timeout.
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	termios.Oflag &^= unix.OPOST
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB
	termios.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 1

	speed, err := baudToSpeed(baud)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	setSpeed(termios, speed)

	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, termios); err != nil {
		unix.Close(fd)
		return nil, errors.DriverIOError("set termios", err)
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, errors.DriverIOError("set blocking", err)
	}

	return &port{fd: fd, device: device}, nil
}

// openSocket connects to the mock hardware endpoint's unix socket,
// retrying while it comes up.
func openSocket(path string, timeout time.Duration) (*port, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, errors.DriverIOError("socket", err)
	}

	addr := &unix.SockaddrUnix{Name: path}
	deadline := time.Now().Add(timeout)
	for {
		err = unix.Connect(fd, addr)
		if err == nil {
			break
		}
		if !stderrors.Is(err, unix.ENOENT) && !stderrors.Is(err, unix.ECONNREFUSED) {
			unix.Close(fd)
			return nil, errors.DriverIOError("connect", fmt.Errorf("%s: %w", path, err))
		}
		if time.Now().After(deadline) {
			unix.Close(fd)
			return nil, errors.DriverIOError("connect", fmt.Errorf("%s: timeout: %w", path, err))
		}
		time.Sleep(100 * time.Millisecond)
	}
	return &port{fd: fd, device: path}, nil
}

func (p *port) Read(b []byte) (int, error) {
	if p.closed {
		return 0, errors.DriverIOError("read", fmt.Errorf("%s: closed", p.device))
	}
	n, err := unix.Read(p.fd, b)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (p *port) Write(b []byte) (int, error) {
	if p.closed {
		return 0, errors.DriverIOError("write", fmt.Errorf("%s: closed", p.device))
	}
	written := 0
	for written < len(b) {
		n, err := unix.Write(p.fd, b[written:])
		if err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

func (p *port) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.fd)
}

var baudRates = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

func baudToSpeed(baud int) (uint32, error) {
	speed, ok := baudRates[baud]
	if !ok {
		return 0, errors.ConfigValidationError("driver", "baud",
			fmt.Sprintf("unsupported baud rate %d", baud))
	}
	return speed, nil
}
