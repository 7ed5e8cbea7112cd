package device

import (
	"bufio"
	"errors"
	"io"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/charlie0129/afterfire/pkg/flame"
	"github.com/charlie0129/afterfire/pkg/link"
	"github.com/charlie0129/afterfire/pkg/pulse"
)

// DefaultBaudRate matches the capture firmware.
const DefaultBaudRate = 115200

// Serial talks to a capture MCU that measures the receiver pulse and
// drives the strip.
type Serial struct {
	conn io.ReadWriteCloser
	cell *pulse.Cell

	mu      sync.Mutex
	last    flame.RGB
	written bool
	closed  bool

	done chan struct{}
}

var _ Device = &Serial{}

// Ports lists serial ports present on the host.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list serial ports")
	}
	return ports, nil
}

// OpenSerial opens port and starts reading pulse lines.
func OpenSerial(port string, baudRate int) (*Serial, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	conn, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open serial port %s", port)
	}
	logrus.WithFields(logrus.Fields{"port": port, "baudRate": baudRate}).Info("serial device opened")
	return newSerial(conn), nil
}

func newSerial(conn io.ReadWriteCloser) *Serial {
	s := &Serial{
		conn: conn,
		cell: pulse.NewCell(),
		done: make(chan struct{}),
	}
	go s.readLines()
	return s
}

func (s *Serial) ReadPulseWidth() uint16 {
	return s.cell.Load()
}

// WriteColor sends c unless it is the color last sent.
func (s *Serial) WriteColor(c flame.RGB) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("serial device closed")
	}
	if s.written && c == s.last {
		return nil
	}
	if _, err := io.WriteString(s.conn, link.FormatColorLine(c)); err != nil {
		return pkgerrors.Wrap(err, "failed to send color")
	}
	s.last = c
	s.written = true
	return nil
}

// Close stops the reader and closes the port.
func (s *Serial) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.conn.Close()
	<-s.done
	return err
}

// readLines is the host-side producer for the pulse cell. The last good
// width stays in the cell if the link goes quiet.
func (s *Serial) readLines() {
	defer close(s.done)

	scanner := bufio.NewScanner(s.conn)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		w, err := link.ParsePulseLine(line)
		if err != nil {
			logrus.WithError(err).Trace("ignoring serial line")
			continue
		}
		s.cell.Store(w)
	}

	if err := scanner.Err(); err != nil && !s.isClosed() {
		logrus.WithError(err).Error("serial read failed, pulse width frozen")
	}
}

func (s *Serial) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
