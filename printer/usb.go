package printer

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/gousb"
)

// USBTransport writes frames to the bulk OUT endpoint of a claimed interface.
type USBTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	out  *gousb.OutEndpoint
}

// endpointChoice locates the OUT endpoint inside the device descriptor.
type endpointChoice struct {
	config, iface, alt, endpoint int
}

// OpenUSB opens the first device matching vendorID/productID, claims the
// first interface that has an OUT endpoint and keeps that endpoint for writes.
func OpenUSB(vendorID, productID gousb.ID) (*USBTransport, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(vendorID, productID)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("failed to open USB device %s:%s: %w", vendorID, productID, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, &ConfigurationError{Reason: fmt.Sprintf("USB device %s:%s not found", vendorID, productID)}
	}

	choice, err := selectOutEndpoint(dev.Desc)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}

	_ = dev.SetAutoDetach(true)
	cfg, err := dev.Config(choice.config)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, &ConfigurationError{Reason: fmt.Sprintf("set configuration %d", choice.config), Err: err}
	}

	intf, err := cfg.Interface(choice.iface, choice.alt)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, &ConfigurationError{Reason: fmt.Sprintf("claim interface %d", choice.iface), Err: err}
	}

	out, err := intf.OutEndpoint(choice.endpoint)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, &ConfigurationError{Reason: fmt.Sprintf("open endpoint %d", choice.endpoint), Err: ErrNoOutEndpoint}
	}

	return &USBTransport{ctx, dev, cfg, intf, out}, nil
}

// NewUSBPrinter opens a USB printer by vendor and product id.
func NewUSBPrinter(vendorID, productID gousb.ID, opts ...Option) (*Printer, error) {
	t, err := OpenUSB(vendorID, productID)
	if err != nil {
		return nil, err
	}
	return New(t, opts...), nil
}

func (u *USBTransport) Write(ctx context.Context, p []byte) error {
	n, err := u.out.WriteContext(ctx, p)
	if err != nil {
		return fmt.Errorf("failed to write to USB device: %w", err)
	}
	if n != len(p) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(p))
	}
	return nil
}

func (u *USBTransport) Close() error {
	if u.intf != nil {
		u.intf.Close()
	}
	if u.cfg != nil {
		u.cfg.Close()
	}
	if u.dev != nil {
		u.dev.Close()
	}
	if u.ctx != nil {
		u.ctx.Close()
	}
	return nil
}

// selectOutEndpoint walks configurations, interfaces and alternate settings
// in ascending order and returns the first bulk OUT endpoint, or the first
// OUT endpoint of any transfer type if there is no bulk one.
func selectOutEndpoint(desc *gousb.DeviceDesc) (endpointChoice, error) {
	var fallback *endpointChoice

	cfgNums := make([]int, 0, len(desc.Configs))
	for n := range desc.Configs {
		cfgNums = append(cfgNums, n)
	}
	sort.Ints(cfgNums)

	for _, cn := range cfgNums {
		for _, ifd := range desc.Configs[cn].Interfaces {
			for _, alt := range ifd.AltSettings {
				eps := make([]gousb.EndpointDesc, 0, len(alt.Endpoints))
				for _, ep := range alt.Endpoints {
					eps = append(eps, ep)
				}
				sort.Slice(eps, func(i, j int) bool { return eps[i].Number < eps[j].Number })

				for _, ep := range eps {
					if ep.Direction != gousb.EndpointDirectionOut {
						continue
					}
					c := endpointChoice{cn, ifd.Number, alt.Alternate, ep.Number}
					if ep.TransferType == gousb.TransferTypeBulk {
						return c, nil
					}
					if fallback == nil {
						fallback = &c
					}
				}
			}
		}
	}

	if fallback != nil {
		return *fallback, nil
	}
	return endpointChoice{}, &ConfigurationError{Reason: "device has no OUT endpoint", Err: ErrNoOutEndpoint}
}

// ParseUSBID parses a hex id with or without a 0x prefix.
func ParseUSBID(s string) (gousb.ID, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	id, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, &ConfigurationError{Reason: fmt.Sprintf("invalid USB id %q", s), Err: err}
	}
	return gousb.ID(id), nil
}
