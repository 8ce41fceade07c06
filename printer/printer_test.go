package printer

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	imgInternal "github.com/AlexStarov/escpos-dotimage/image"
)

var errUnplugged = errors.New("device unplugged")

// recordingTransport keeps every frame; it fails the write with index failAt.
type recordingTransport struct {
	mu     sync.Mutex
	frames [][]byte
	failAt int
	closed bool
}

func newRecording() *recordingTransport {
	return &recordingTransport{failAt: -1}
}

func (r *recordingTransport) Write(ctx context.Context, frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(r.frames) == r.failAt {
		return errUnplugged
	}
	r.frames = append(r.frames, append([]byte(nil), frame...))
	return nil
}

func (r *recordingTransport) Close() error {
	r.closed = true
	return nil
}

func (r *recordingTransport) Frames() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func filledMatrix(width, height int, v uint8) imgInternal.Matrix {
	m := imgInternal.NewMatrix(width, height)
	for y := range m {
		for x := range m[y] {
			m[y][x] = v
		}
	}
	return m
}

func TestPrintImageFrameSequence(t *testing.T) {
	rec := newRecording()
	p := New(rec)

	m := imgInternal.NewMatrix(5, 16)
	m[0][0] = 1
	m[15][4] = 1
	require.NoError(t, p.PrintImage(context.Background(), m, imgInternal.EightDot))

	want := [][]byte{
		{0x1B, 0x33, 8},
		{0x1B, 0x2A, 0, 5, 0},
		{0x80, 0, 0, 0, 0},
		{0x0A},
		{0x1B, 0x2A, 0, 5, 0},
		{0, 0, 0, 0, 0x01},
		{0x0A},
		{0x1B, 0x33, 30},
	}
	assert.Equal(t, want, rec.Frames())
}

func TestPrintImageIsDeterministic(t *testing.T) {
	m := filledMatrix(7, 24, 1)
	m[3][2] = 0

	var runs [][][]byte
	for i := 0; i < 3; i++ {
		rec := newRecording()
		require.NoError(t, New(rec).PrintImage(context.Background(), m, imgInternal.EightDot))
		runs = append(runs, rec.Frames())
	}
	assert.Len(t, runs[0], 1+3*3+1)
	assert.Equal(t, runs[0], runs[1])
	assert.Equal(t, runs[0], runs[2])
}

func TestPrintImageTwentyFourDot(t *testing.T) {
	rec := newRecording()
	p := New(rec)

	require.NoError(t, p.PrintImage(context.Background(), filledMatrix(300, 48, 1), imgInternal.TwentyFourDot))

	frames := rec.Frames()
	require.Len(t, frames, 1+2*3+1)
	assert.Equal(t, []byte{0x1B, 0x33, 24}, frames[0])
	assert.Equal(t, []byte{0x1B, 0x2A, 33, 0x2C, 0x01}, frames[1])
	assert.Len(t, frames[2], 900)
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 900), frames[2])
	assert.Equal(t, []byte{0x0A}, frames[3])
	assert.Equal(t, []byte{0x1B, 0x33, 30}, frames[7])
}

func TestPrintImageRejectsBeforeWriting(t *testing.T) {
	ragged := imgInternal.NewMatrix(4, 8)
	ragged[5] = ragged[5][:2]

	tests := []struct {
		name string
		m    imgInternal.Matrix
		d    imgInternal.Density
	}{
		{"height 10 at 8", imgInternal.NewMatrix(5, 10), imgInternal.EightDot},
		{"height 16 at 24", imgInternal.NewMatrix(5, 16), imgInternal.TwentyFourDot},
		{"ragged", ragged, imgInternal.EightDot},
		{"empty", imgInternal.Matrix{}, imgInternal.EightDot},
		{"unknown density", imgInternal.NewMatrix(5, 8), imgInternal.Density(12)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := newRecording()
			err := New(rec).PrintImage(context.Background(), tc.m, tc.d)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "want *ValidationError, got %v", err)
			assert.Empty(t, rec.Frames())
		})
	}
}

func TestSetCharacterStyle(t *testing.T) {
	tests := []struct {
		style CharacterStyle
		want  byte
	}{
		{CharacterStyle{}, 0x00},
		{CharacterStyle{Emphasized: true, Underline: true}, 0x88},
		{CharacterStyle{SmallFont: true}, 0x01},
		{CharacterStyle{DoubleHeight: true, DoubleWidth: true}, 0x30},
		{CharacterStyle{true, true, true, true, true}, 0xB9},
	}

	for _, tc := range tests {
		rec := newRecording()
		require.NoError(t, New(rec).SetCharacterStyle(context.Background(), tc.style))
		assert.Equal(t, [][]byte{{0x1B, 0x21, tc.want}}, rec.Frames(), "%+v", tc.style)
	}
}

func TestSimpleCommands(t *testing.T) {
	ctx := context.Background()
	rec := newRecording()
	p := New(rec)

	require.NoError(t, p.Reset(ctx))
	require.NoError(t, p.SetLineSpacing(ctx, 0))
	require.NoError(t, p.SetLineSpacing(ctx, 255))
	require.NoError(t, p.Reverse(ctx, true))
	require.NoError(t, p.Reverse(ctx, false))
	require.NoError(t, p.Linefeed(ctx))
	require.NoError(t, p.SetAlign(ctx, "center"))
	require.NoError(t, p.FeedLines(ctx, 3))
	require.NoError(t, p.Cut(ctx))
	require.NoError(t, p.WriteRaw(ctx, []byte{0x1B, 0x45, 0x01}))

	assert.Equal(t, [][]byte{
		{0x1B, 0x40},
		{0x1B, 0x33, 0},
		{0x1B, 0x33, 255},
		{0x1D, 0x42, '1'},
		{0x1D, 0x42, '0'},
		{0x0A},
		{0x1B, 0x61, 1},
		{0x1B, 0x64, 3},
		{0x1D, 0x56, 'A', '0'},
		{0x1B, 0x45, 0x01},
	}, rec.Frames())
}

func TestOutOfRangeParametersSendNothing(t *testing.T) {
	ctx := context.Background()
	rec := newRecording()
	p := New(rec)

	var ve *ValidationError
	assert.True(t, errors.As(p.SetLineSpacing(ctx, 256), &ve))
	assert.True(t, errors.As(p.SetLineSpacing(ctx, -1), &ve))
	assert.True(t, errors.As(p.FeedLines(ctx, 300), &ve))
	assert.True(t, errors.As(p.SetAlign(ctx, "justify"), &ve))
	assert.Empty(t, rec.Frames())
}

func TestSendText(t *testing.T) {
	ctx := context.Background()
	rec := newRecording()
	p := New(rec)

	require.NoError(t, p.SendText(ctx, "Hi é\n"))
	require.NoError(t, p.SendText(ctx, ""))
	assert.Equal(t, [][]byte{{'H', 'i', ' ', 0xE9, '\n'}}, rec.Frames())

	err := p.SendText(ctx, "5 €")
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "text", ve.Field)

	assert.Error(t, p.SendText(ctx, "bad \xff utf8"))
	assert.Len(t, rec.Frames(), 1)
}

func TestTransportFailureAbortsJob(t *testing.T) {
	ctx := context.Background()
	rec := newRecording()
	rec.failAt = 3
	p := New(rec)

	err := p.PrintImage(ctx, filledMatrix(4, 16, 1), imgInternal.EightDot)
	var te *TransportError
	require.True(t, errors.As(err, &te), "want *TransportError, got %v", err)
	assert.Equal(t, "image", te.Op)
	assert.Equal(t, 3, te.Frame)
	assert.ErrorIs(t, err, errUnplugged)
	assert.Len(t, rec.Frames(), 3)

	err = p.Reset(ctx)
	assert.ErrorIs(t, err, ErrJobAborted)
	assert.ErrorIs(t, err, errUnplugged)
	assert.Len(t, rec.Frames(), 3)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := newRecording()
	p := New(rec)
	err := p.PrintImage(ctx, filledMatrix(4, 8, 1), imgInternal.EightDot)
	assert.ErrorIs(t, err, context.Canceled)

	var te *TransportError
	assert.True(t, errors.As(err, &te))
	assert.ErrorIs(t, p.Reset(context.Background()), ErrJobAborted)
}

func TestConcurrentJobsDoNotInterleave(t *testing.T) {
	rec := newRecording()
	p := New(rec)

	jobs := []imgInternal.Matrix{
		filledMatrix(3, 32, 1),
		filledMatrix(3, 32, 0),
	}

	var wg sync.WaitGroup
	for _, m := range jobs {
		wg.Add(1)
		go func(m imgInternal.Matrix) {
			defer wg.Done()
			assert.NoError(t, p.PrintImage(context.Background(), m, imgInternal.EightDot))
		}(m)
	}
	wg.Wait()

	frames := rec.Frames()
	perJob := 1 + 4*3 + 1
	require.Len(t, frames, 2*perJob)

	for j := 0; j < 2; j++ {
		job := frames[j*perJob : (j+1)*perJob]
		assert.Equal(t, []byte{0x1B, 0x33, 8}, job[0])
		assert.Equal(t, []byte{0x1B, 0x33, 30}, job[perJob-1])
		first := job[2][0]
		for band := 0; band < 4; band++ {
			assert.Equal(t, []byte{0x1B, 0x2A, 0, 3, 0}, job[1+band*3])
			assert.Equal(t, []byte{first, first, first}, job[2+band*3])
			assert.Equal(t, []byte{0x0A}, job[3+band*3])
		}
	}
	assert.NotEqual(t, frames[2][0], frames[perJob+2][0])
}

func TestPrintImageLogsJob(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p := New(newRecording(), WithLogger(zap.New(core)))

	require.NoError(t, p.PrintImage(context.Background(), filledMatrix(2, 8, 1), imgInternal.EightDot))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "print job started", entries[0].Message)
	assert.Equal(t, "print job finished", entries[1].Message)

	jobID := entries[0].ContextMap()["job_id"]
	assert.NotEmpty(t, jobID)
	assert.Equal(t, jobID, entries[1].ContextMap()["job_id"])
}

func TestNewPrinterOverWriter(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewPrinter(&buf)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Reset(ctx))
	require.NoError(t, p.SetCharacterStyle(ctx, CharacterStyle{Emphasized: true}))
	require.NoError(t, p.SendText(ctx, "OK"))
	require.NoError(t, p.Close())

	assert.Equal(t, []byte{0x1B, 0x40, 0x1B, 0x21, 0x08, 'O', 'K'}, buf.Bytes())

	_, err = NewPrinter(nil)
	var ce *ConfigurationError
	assert.True(t, errors.As(err, &ce))
}

func TestCloseClosesTransport(t *testing.T) {
	rec := newRecording()
	require.NoError(t, New(rec).Close())
	assert.True(t, rec.closed)
}

func TestPrinterIsImageTarget(t *testing.T) {
	var _ imgInternal.Target = (*Printer)(nil)
}

func TestJobWritesFramesTogether(t *testing.T) {
	ctx := context.Background()
	rec := newRecording()
	p := New(rec)

	align, err := AlignFrame("center")
	require.NoError(t, err)
	require.NoError(t, p.Job(ctx, "text", align, StyleFrame(CharacterStyle{Underline: true}), nil, []byte("A\n")))
	require.NoError(t, p.Job(ctx, "text", nil, []byte{}))

	assert.Equal(t, [][]byte{
		{0x1B, 0x61, 1},
		{0x1B, 0x21, 0x80},
		{'A', '\n'},
	}, rec.Frames())
}

func TestJobAbortsOnFailure(t *testing.T) {
	ctx := context.Background()
	rec := newRecording()
	rec.failAt = 1
	p := New(rec)

	err := p.Job(ctx, "text", ResetFrame(), []byte("lost"), LineFeedFrame())
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "text", te.Op)
	assert.Equal(t, 1, te.Frame)
	assert.Len(t, rec.Frames(), 1)

	assert.ErrorIs(t, p.Job(ctx, "text", LineFeedFrame()), ErrJobAborted)
}
