package printer

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	imgInternal "github.com/AlexStarov/escpos-dotimage/image"
)

// Printer encodes ESC/POS commands and writes them, one frame per transport
// write, in call order. All methods are safe for concurrent use; a whole
// PrintImage job is written under one lock so frames never interleave.
type Printer struct {
	t      Transport
	logger *zap.Logger

	// set on the first transport failure
	aborted error

	sync.Mutex
}

// Option configures a Printer.
type Option func(*Printer)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(p *Printer) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a printer that writes through t.
func New(t Transport, opts ...Option) *Printer {
	p := &Printer{t: t, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewPrinter creates a printer on top of w. A net.Conn to port 515 is spooled
// through LPD, any other net.Conn gets context deadlines, and a plain
// io.Writer is written through directly.
func NewPrinter(w io.Writer, opts ...Option) (*Printer, error) {
	if w == nil {
		return nil, &ConfigurationError{Reason: "nil writer"}
	}

	p := New(nil, opts...)
	if conn, ok := w.(net.Conn); ok {
		if strings.HasSuffix(conn.RemoteAddr().String(), ":515") {
			p.t = NewLPDTransport(conn, "lp", p.logger)
		} else {
			p.t = NewConnTransport(conn)
		}
	} else {
		p.t = NewRawTransport(w)
	}
	return p, nil
}

// Close releases the transport. For LPD this is when the job is submitted.
func (p *Printer) Close() error {
	p.Lock()
	defer p.Unlock()
	return p.t.Close()
}

// send writes frames in order, stopping at the first failure. Callers hold the lock.
func (p *Printer) send(ctx context.Context, op string, frames ...[]byte) error {
	if p.aborted != nil {
		return &TransportError{Op: op, Err: errors.Join(ErrJobAborted, p.aborted)}
	}

	for i, f := range frames {
		if err := p.t.Write(ctx, f); err != nil {
			p.aborted = err
			p.logger.Error("frame write failed",
				zap.String("op", op),
				zap.Int("frame", i),
				zap.Error(err),
			)
			return &TransportError{Op: op, Frame: i, Err: err}
		}
		p.logger.Debug("frame written", zap.String("op", op), zap.Int("bytes", len(f)))
	}
	return nil
}

// Reset sends ESC @.
func (p *Printer) Reset(ctx context.Context) error {
	p.Lock()
	defer p.Unlock()
	return p.send(ctx, "reset", ResetFrame())
}

// SetLineSpacing sends ESC 3 n; n must fit in a byte.
func (p *Printer) SetLineSpacing(ctx context.Context, n int) error {
	f, err := LineSpacingFrame(n)
	if err != nil {
		return err
	}

	p.Lock()
	defer p.Unlock()
	return p.send(ctx, "line spacing", f)
}

// SetCharacterStyle sends ESC ! with the flags of s.
func (p *Printer) SetCharacterStyle(ctx context.Context, s CharacterStyle) error {
	p.Lock()
	defer p.Unlock()
	return p.send(ctx, "character style", StyleFrame(s))
}

// Reverse toggles white-on-black printing.
func (p *Printer) Reverse(ctx context.Context, enabled bool) error {
	p.Lock()
	defer p.Unlock()
	return p.send(ctx, "reverse", ReverseFrame(enabled))
}

// Linefeed writes a line end to the printer.
func (p *Printer) Linefeed(ctx context.Context) error {
	p.Lock()
	defer p.Unlock()
	return p.send(ctx, "linefeed", LineFeedFrame())
}

// FeedLines prints the buffer and feeds n lines.
func (p *Printer) FeedLines(ctx context.Context, n int) error {
	f, err := FeedLinesFrame(n)
	if err != nil {
		return err
	}

	p.Lock()
	defer p.Unlock()
	return p.send(ctx, "feed", f)
}

// SetAlign sets the justification: left, center or right.
func (p *Printer) SetAlign(ctx context.Context, align string) error {
	f, err := AlignFrame(align)
	if err != nil {
		return err
	}

	p.Lock()
	defer p.Unlock()
	return p.send(ctx, "align", f)
}

// Cut writes the cut code to the printer.
func (p *Printer) Cut(ctx context.Context) error {
	p.Lock()
	defer p.Unlock()
	return p.send(ctx, "cut", CutFrame())
}

// SendText writes s with one byte per character. Characters above U+00FF are
// rejected and nothing is written.
func (p *Printer) SendText(ctx context.Context, s string) error {
	b, err := EncodeText(s)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}

	p.Lock()
	defer p.Unlock()
	return p.send(ctx, "text", b)
}

// WriteRaw passes frame through unchanged, ordered with the other commands.
func (p *Printer) WriteRaw(ctx context.Context, frame []byte) error {
	if len(frame) == 0 {
		return nil
	}

	p.Lock()
	defer p.Unlock()
	return p.send(ctx, "raw", frame)
}

// Job writes frames as one job: no other call's frames can land between
// them. Empty frames are skipped. Build frames with the *Frame helpers so
// they are validated before the lock is taken.
func (p *Printer) Job(ctx context.Context, op string, frames ...[]byte) error {
	out := make([][]byte, 0, len(frames))
	for _, f := range frames {
		if len(f) > 0 {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil
	}

	p.Lock()
	defer p.Unlock()
	return p.send(ctx, op, out...)
}

// PrintImage prints m as a sequence of ESC * bit-image slices of d.Dots()
// rows each, then restores DefaultLineSpacing. An invalid matrix is rejected
// before anything is written.
func (p *Printer) PrintImage(ctx context.Context, m imgInternal.Matrix, d imgInternal.Density) error {
	if err := m.Validate(d); err != nil {
		return err
	}

	width, height := m.Width(), m.Height()
	header, err := BitImageHeader(d, width)
	if err != nil {
		return err
	}
	spacing, err := LineSpacingFrame(d.Dots())
	if err != nil {
		return err
	}
	restore, err := LineSpacingFrame(DefaultLineSpacing)
	if err != nil {
		return err
	}

	p.Lock()
	defer p.Unlock()

	logger := p.logger.With(zap.String("job_id", uuid.NewString()))
	logger.Info("print job started",
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Stringer("density", d),
	)

	frame := 0
	emit := func(frames ...[]byte) error {
		err := p.send(ctx, "image", frames...)
		var te *TransportError
		if errors.As(err, &te) {
			te.Frame += frame
		}
		frame += len(frames)
		return err
	}

	if err := emit(spacing); err != nil {
		logger.Error("print job failed", zap.Error(err))
		return err
	}
	for y := 0; y < height; y += d.Dots() {
		slice := imgInternal.PackSlice(m, width, y, d)
		if err := emit(header, slice, LineFeedFrame()); err != nil {
			logger.Error("print job failed", zap.Int("row", y), zap.Error(err))
			return err
		}
	}
	if err := emit(restore); err != nil {
		logger.Error("print job failed", zap.Error(err))
		return err
	}

	logger.Info("print job finished", zap.Int("slices", height/d.Dots()))
	return nil
}
