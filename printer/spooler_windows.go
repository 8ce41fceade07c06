//go:build windows

package printer

import (
	"context"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// SpoolerTransport writes RAW data through the Windows print spooler.
type SpoolerTransport struct {
	hPrinter windows.Handle
}

func (s *SpoolerTransport) Write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}

	var written uint32
	r1, _, err := procWritePrinter.Call(
		uintptr(s.hPrinter),
		uintptr(unsafe.Pointer(&p[0])),
		uintptr(len(p)),
		uintptr(unsafe.Pointer(&written)),
	)
	if r1 == 0 {
		return fmt.Errorf("WritePrinter failed: %w", err)
	}
	if int(written) != len(p) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", written, len(p))
	}
	return nil
}

// Close ends the document, which hands the job to the spooler.
func (s *SpoolerTransport) Close() error {
	procEndPagePrinter.Call(uintptr(s.hPrinter))
	procEndDocPrinter.Call(uintptr(s.hPrinter))
	procClosePrinter.Call(uintptr(s.hPrinter))
	return nil
}

// OpenSpooler starts a RAW document on the named printer.
func OpenSpooler(printerName string) (*SpoolerTransport, error) {
	var hPrinter windows.Handle
	pname, err := windows.UTF16PtrFromString(printerName)
	if err != nil {
		return nil, &ConfigurationError{Reason: "invalid printer name", Err: err}
	}
	r1, _, err := procOpenPrinter.Call(
		uintptr(unsafe.Pointer(pname)),
		uintptr(unsafe.Pointer(&hPrinter)),
		0,
	)
	if r1 == 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("failed to open printer %q", printerName), Err: err}
	}

	docName, _ := windows.UTF16PtrFromString("ESC/POS RAW Document")
	dataType, _ := windows.UTF16PtrFromString("RAW")
	di := docInfo1{
		pDocName:    docName,
		pOutputFile: nil,
		pDatatype:   dataType,
	}

	r1, _, err = procStartDocPrinter.Call(
		uintptr(hPrinter),
		1,
		uintptr(unsafe.Pointer(&di)),
	)
	if r1 == 0 {
		procClosePrinter.Call(uintptr(hPrinter))
		return nil, fmt.Errorf("StartDocPrinter failed: %w", err)
	}

	procStartPagePrinter.Call(uintptr(hPrinter))
	return &SpoolerTransport{hPrinter: hPrinter}, nil
}

// NewSpoolerPrinter creates a Printer on a Windows printer queue.
func NewSpoolerPrinter(printerName string, opts ...Option) (*Printer, error) {
	t, err := OpenSpooler(printerName)
	if err != nil {
		return nil, err
	}
	return New(t, opts...), nil
}

var (
	modwinspool          = windows.NewLazySystemDLL("winspool.drv")
	procOpenPrinter      = modwinspool.NewProc("OpenPrinterW")
	procClosePrinter     = modwinspool.NewProc("ClosePrinter")
	procStartDocPrinter  = modwinspool.NewProc("StartDocPrinterW")
	procEndDocPrinter    = modwinspool.NewProc("EndDocPrinter")
	procStartPagePrinter = modwinspool.NewProc("StartPagePrinter")
	procEndPagePrinter   = modwinspool.NewProc("EndPagePrinter")
	procWritePrinter     = modwinspool.NewProc("WritePrinter")
)

type docInfo1 struct {
	pDocName    *uint16
	pOutputFile *uint16
	pDatatype   *uint16
}
