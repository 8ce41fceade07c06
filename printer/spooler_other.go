//go:build !windows

package printer

// NewSpoolerPrinter is only available on Windows.
func NewSpoolerPrinter(printerName string, opts ...Option) (*Printer, error) {
	return nil, &ConfigurationError{Reason: "Windows spooler printing is only supported on Windows"}
}
