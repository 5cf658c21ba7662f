package obd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Scanner errors.
var (
	ErrNotConnected     = errors.New("scanner not connected")
	ErrAlreadyConnected = errors.New("scanner already connected")
	ErrNoPortsFound     = errors.New("no scanner ports found")
)

const (
	// DefaultBaudRate is the standard ELM327 baud rate.
	DefaultBaudRate = 38400

	// commandTimeout bounds a single command round trip.
	commandTimeout = 10 * time.Second

	// readChunkTimeout is the serial read timeout per chunk.
	readChunkTimeout = 100 * time.Millisecond
)

// initCommands configure the adapter after reset: echo off, linefeeds off,
// then probe supported PIDs to wake the ECU link.
var initCommands = []string{"ATZ", "ATE0", "ATL0", "0100"}

// port is the transport the scanner talks over. Satisfied by
// serial.Port; tests substitute an in-memory implementation.
type port interface {
	io.ReadWriter
	Close() error
}

// openPort opens the serial device. Replaced in tests.
var openPort = func(name string, baud int) (port, error) {
	p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(readChunkTimeout); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// PortInfo describes an available serial port.
type PortInfo struct {
	Port         string `json:"port"`
	Description  string `json:"description"`
	Manufacturer string `json:"manufacturer"`
}

// Status is a snapshot of the scanner connection state.
type Status struct {
	Connected    bool       `json:"connected"`
	Port         string     `json:"port,omitempty"`
	BaudRate     int        `json:"baudrate,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// VehicleIdent holds mode 09 vehicle identification data.
type VehicleIdent struct {
	VIN            string   `json:"vin,omitempty"`
	CalibrationIDs []string `json:"calibration_ids"`
}

// Scanner drives an ELM327 adapter over a serial port. One scanner is
// shared by the whole process; the mutex serializes command traffic.
type Scanner struct {
	mu           sync.Mutex
	conn         port
	portName     string
	baudRate     int
	connected    bool
	lastActivity time.Time
	logger       *slog.Logger
}

// NewScanner creates a Scanner with the given defaults.
func NewScanner(defaultPort string, baudRate int, logger *slog.Logger) *Scanner {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return &Scanner{
		portName: defaultPort,
		baudRate: baudRate,
		logger:   logger.With("component", "obd.scanner"),
	}
}

// ListPorts enumerates serial ports that look like OBD2 adapters
// (USB or bluetooth serial bridges).
func (s *Scanner) ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		desc := strings.ToLower(d.Product)
		if !d.IsUSB && !strings.Contains(desc, "bluetooth") {
			continue
		}

		manufacturer := d.VID
		if manufacturer == "" {
			manufacturer = "Unknown"
		}
		ports = append(ports, PortInfo{
			Port:         d.Name,
			Description:  d.Product,
			Manufacturer: manufacturer,
		})
	}

	return ports, nil
}

// Connect opens the serial port and runs the ELM327 init sequence.
// An empty portName uses the configured default, falling back to the
// first enumerated adapter port.
func (s *Scanner) Connect(ctx context.Context, portName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return ErrAlreadyConnected
	}

	if portName != "" {
		s.portName = portName
	}
	if s.portName == "" {
		available, err := s.ListPorts()
		if err != nil {
			return err
		}
		if len(available) == 0 {
			return ErrNoPortsFound
		}
		s.portName = available[0].Port
	}

	conn, err := openPort(s.portName, s.baudRate)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.portName, err)
	}
	s.conn = conn
	s.connected = true

	for _, cmd := range initCommands {
		if _, err := s.sendCommand(ctx, cmd); err != nil {
			s.closeLocked()
			return fmt.Errorf("init command %s: %w", cmd, err)
		}
	}

	s.lastActivity = time.Now()
	s.logger.Info("connected to ELM327 scanner", "port", s.portName, "baudrate", s.baudRate)
	return nil
}

// Disconnect closes the serial port. Safe to call when not connected.
func (s *Scanner) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}

	err := s.closeLocked()
	s.logger.Info("disconnected from ELM327 scanner", "port", s.portName)
	return err
}

func (s *Scanner) closeLocked() error {
	var err error
	if s.conn != nil {
		err = s.conn.Close()
		s.conn = nil
	}
	s.connected = false
	return err
}

// Status returns the current connection state.
func (s *Scanner) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{Connected: s.connected}
	if s.connected {
		status.Port = s.portName
		status.BaudRate = s.baudRate
		last := s.lastActivity
		status.LastActivity = &last
	}
	return status
}

// Connected reports whether the scanner link is open.
func (s *Scanner) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// ReadSensor queries one mode 01 PID and decodes the reading.
func (s *Scanner) ReadSensor(ctx context.Context, pid string) (*Reading, error) {
	if !SupportedPID(pid) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPID, pid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	response, err := s.sendCommand(ctx, pid)
	if err != nil {
		return nil, err
	}

	return ParsePIDResponse(pid, response)
}

// ReadDTCs queries mode 03 and returns the stored trouble codes.
func (s *Scanner) ReadDTCs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	response, err := s.sendCommand(ctx, "03")
	if err != nil {
		return nil, err
	}

	return ParseDTCResponse(response)
}

// VehicleIdent reads the VIN and calibration IDs over mode 09.
// Missing fields are left empty rather than failing the whole read.
func (s *Scanner) VehicleIdent(ctx context.Context) (*VehicleIdent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ident := &VehicleIdent{CalibrationIDs: []string{}}

	vinResp, err := s.sendCommand(ctx, "0902")
	if err != nil {
		return nil, err
	}
	if vin, err := ParseVIN(vinResp); err == nil {
		ident.VIN = vin
	} else if !errors.Is(err, ErrNoData) {
		s.logger.Warn("failed to parse VIN response", "error", err)
	}

	calResp, err := s.sendCommand(ctx, "0904")
	if err != nil {
		return nil, err
	}
	if ids, err := ParseCalibrationIDs(calResp); err == nil {
		ident.CalibrationIDs = append(ident.CalibrationIDs, ids...)
	} else {
		s.logger.Warn("failed to parse calibration IDs", "error", err)
	}

	return ident, nil
}

// sendCommand writes a command and reads the response up to the ELM327
// prompt character. Callers must hold s.mu.
func (s *Scanner) sendCommand(ctx context.Context, command string) (string, error) {
	if !s.connected || s.conn == nil {
		return "", ErrNotConnected
	}

	deadline := time.Now().Add(commandTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if _, err := s.conn.Write([]byte(command + "\r")); err != nil {
		return "", fmt.Errorf("write command %s: %w", command, err)
	}

	var response strings.Builder
	buf := make([]byte, 256)

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("command %s: response timeout", command)
		}

		n, err := s.conn.Read(buf)
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("read response: %w", err)
		}
		if n > 0 {
			chunk := string(buf[:n])
			if idx := strings.IndexByte(chunk, '>'); idx >= 0 {
				response.WriteString(chunk[:idx])
				break
			}
			response.WriteString(chunk)
		}
	}

	s.lastActivity = time.Now()
	return normalizeResponse(response.String()), nil
}

// normalizeResponse strips carriage returns and blank lines from raw
// adapter output.
func normalizeResponse(raw string) string {
	raw = strings.ReplaceAll(raw, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
