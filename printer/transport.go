package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Transport carries frames to the device. Write returns once the whole frame
// has been accepted, or with an error; it must honour ctx cancellation.
type Transport interface {
	Write(ctx context.Context, frame []byte) error
	Close() error
}

// -------------------- RAW --------------------

// RawTransport writes straight through to an io.Writer, e.g. /dev/usb/lp0.
type RawTransport struct {
	w io.Writer
}

func NewRawTransport(w io.Writer) *RawTransport {
	return &RawTransport{w: w}
}

func (r *RawTransport) Write(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeAll(r.w, b)
}

// Close closes the writer if it is an io.Closer.
func (r *RawTransport) Close() error {
	if c, ok := r.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// -------------------- TCP --------------------

// ConnTransport writes to a network connection (raw port 9100 printers).
// Cancelling ctx interrupts a blocked write through the write deadline.
type ConnTransport struct {
	conn net.Conn
}

func NewConnTransport(conn net.Conn) *ConnTransport {
	return &ConnTransport{conn: conn}
}

func (c *ConnTransport) Write(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	expired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetWriteDeadline(time.Unix(1, 0))
		close(expired)
	})
	defer func() {
		// a callback already running must finish before the deadline is cleared
		if !stop() {
			<-expired
		}
		_ = c.conn.SetWriteDeadline(time.Time{})
	}()

	if err := writeAll(c.conn, b); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %v", ctxErr, err)
		}
		if _, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return err
	}
	return nil
}

func (c *ConnTransport) Close() error { return c.conn.Close() }

// -------------------- LPD --------------------

// LPDTransport collects the job in memory and submits it as one RFC 1179
// print job when closed.
type LPDTransport struct {
	conn   net.Conn
	queue  string
	jobBuf bytes.Buffer
	closed bool
	logger *zap.Logger
	mu     sync.Mutex
}

func NewLPDTransport(conn net.Conn, queue string, logger *zap.Logger) *LPDTransport {
	if queue == "" {
		queue = "lp"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LPDTransport{
		conn:   conn,
		queue:  queue,
		logger: logger.With(zap.String("transport", "lpd"), zap.String("queue", queue)),
	}
}

func (l *LPDTransport) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return io.ErrClosedPipe
	}
	_, err := l.jobBuf.Write(data)
	return err
}

func (l *LPDTransport) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	defer func() { l.closed = true }()

	if l.jobBuf.Len() == 0 {
		l.logger.Debug("empty job, closing connection")
		return l.conn.Close()
	}

	if err := l.flushJob(); err != nil {
		l.logger.Error("LPD job submission failed", zap.Error(err))
		_ = l.conn.Close()
		return err
	}
	return l.conn.Close()
}

func (l *LPDTransport) flushJob() error {
	host, _ := os.Hostname()
	if host == "" {
		host = "localhost"
	}
	user := os.Getenv("USER")
	if user == "" {
		user = "escpos"
	}

	jobID := int(time.Now().UnixNano() % 1000000)
	hostShort := host
	if i := strings.IndexByte(hostShort, '.'); i > 0 {
		hostShort = hostShort[:i]
	}
	jobName := fmt.Sprintf("escpos-%d", jobID)
	cfName := fmt.Sprintf("cfA%03d%s", jobID%1000, hostShort)
	dfName := fmt.Sprintf("dfA%03d%s", jobID%1000, hostShort)

	// H host, P user, J job name, N source file name, l data file printed raw
	control := fmt.Sprintf(
		"H%s\nP%s\nJ%s\nN%s\nl%s\n",
		host, user, jobName, dfName, dfName,
	)

	if err := requestPrintJob(l.conn, l.queue); err != nil {
		return fmt.Errorf("LPD: stage 1 failed: %w", err)
	}
	if err := sendControlFile(l.conn, cfName, []byte(control)); err != nil {
		return fmt.Errorf("LPD: stage 2 failed: %w", err)
	}
	data := l.jobBuf.Bytes()
	if err := sendDataFile(l.conn, dfName, data); err != nil {
		return fmt.Errorf("LPD: stage 3 failed: %w", err)
	}

	l.logger.Info("LPD job submitted", zap.String("job", jobName), zap.Int("bytes", len(data)))
	l.jobBuf.Reset()
	return nil
}

// -------------------- LPD helpers --------------------

func requestPrintJob(conn net.Conn, queue string) error {
	// \x02 + <queue>\n
	if err := writeAll(conn, append([]byte{0x02}, queue+"\n"...)); err != nil {
		return err
	}
	return readAck(conn, "stage 1")
}

func sendControlFile(conn net.Conn, cfName string, control []byte) error {
	// \x02 + "<size> <cfName>\n", then <control> + \x00
	header := append([]byte{0x02}, strconv.Itoa(len(control))+" "+cfName+"\n"...)
	if err := writeAll(conn, header); err != nil {
		return err
	}
	if err := readAck(conn, "stage 2 header"); err != nil {
		return err
	}
	if err := writeAll(conn, append(control, 0x00)); err != nil {
		return err
	}
	return readAck(conn, "stage 2")
}

func sendDataFile(conn net.Conn, dfName string, data []byte) error {
	// \x03 + "<size> <dfName>\n", then <data> + \x00
	header := append([]byte{0x03}, strconv.Itoa(len(data))+" "+dfName+"\n"...)
	if err := writeAll(conn, header); err != nil {
		return err
	}
	if err := readAck(conn, "stage 3 header"); err != nil {
		return err
	}
	if err := writeAll(conn, data); err != nil {
		return err
	}
	if err := writeAll(conn, []byte{0x00}); err != nil {
		return err
	}
	return readAck(conn, "stage 3")
}

func readAck(conn net.Conn, stage string) error {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	ack := make([]byte, 1)
	n, err := conn.Read(ack)
	if err != nil {
		return fmt.Errorf("reading ACK on %s: %w", stage, err)
	}
	if n != 1 || ack[0] != 0x00 {
		return fmt.Errorf("LPD request not acknowledged on %s", stage)
	}
	return nil
}

// -------------------- helpers --------------------

func writeAll(w io.Writer, b []byte) error {
	sent := 0
	for sent < len(b) {
		n, err := w.Write(b[sent:])
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		sent += n
	}
	return nil
}
