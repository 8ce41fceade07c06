package printer

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/AlexStarov/escpos-dotimage/config"
)

// Open builds the transport described by cfg and returns a Printer on it.
func Open(ctx context.Context, cfg config.TransportConfig, opts ...Option) (*Printer, error) {
	switch cfg.Kind {
	case "usb":
		vid, err := ParseUSBID(cfg.USB.VendorID)
		if err != nil {
			return nil, err
		}
		pid, err := ParseUSBID(cfg.USB.ProductID)
		if err != nil {
			return nil, err
		}
		return NewUSBPrinter(vid, pid, opts...)

	case "serial":
		return NewSerialPrinter(cfg.Serial.Port, cfg.Serial.BaudRate, opts...)

	case "tcp", "lpd":
		d := net.Dialer{Timeout: cfg.TCP.DialTimeout}
		conn, err := d.DialContext(ctx, "tcp", cfg.TCP.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", cfg.TCP.Address, err)
		}
		p := New(nil, opts...)
		if cfg.Kind == "lpd" {
			p.t = NewLPDTransport(conn, cfg.TCP.Queue, p.logger)
		} else {
			p.t = NewConnTransport(conn)
		}
		return p, nil

	case "file":
		f, err := os.OpenFile(cfg.File.Path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
		if err != nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("open %s", cfg.File.Path), Err: err}
		}
		return New(NewRawTransport(f), opts...), nil

	case "spooler":
		return NewSpoolerPrinter(cfg.Spooler.PrinterName, opts...)
	}

	return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown transport kind %q", cfg.Kind)}
}
