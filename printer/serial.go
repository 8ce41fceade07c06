package printer

import (
	"context"
	"fmt"

	"go.bug.st/serial"
)

// SerialTransport writes to a serial port and drains it after every frame,
// so Write returns only once the bytes have left the UART.
type SerialTransport struct {
	port serial.Port
}

// OpenSerial opens portName (COM3, /dev/ttyUSB0, ...) as 8N1 at baudRate.
func OpenSerial(portName string, baudRate int) (*SerialTransport, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	if !contains(ports, portName) {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("serial port %s not found", portName)}
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return &SerialTransport{port: port}, nil
}

// NewSerialPrinter creates a Printer on a serial port.
func NewSerialPrinter(portName string, baudRate int, opts ...Option) (*Printer, error) {
	t, err := OpenSerial(portName, baudRate)
	if err != nil {
		return nil, err
	}
	return New(t, opts...), nil
}

func (s *SerialTransport) Write(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeAll(s.port, b); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	if err := s.port.Drain(); err != nil {
		return fmt.Errorf("serial drain: %w", err)
	}
	return nil
}

func (s *SerialTransport) Close() error { return s.port.Close() }

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
