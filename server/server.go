package server

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"

	imgInternal "github.com/AlexStarov/escpos-dotimage/image"
	"github.com/AlexStarov/escpos-dotimage/printer"
)

const (
	// maxImageBytes bounds the request body of /print/image.
	maxImageBytes = 8 << 20

	// maxImagePixels bounds the decoded size, checked from the header.
	maxImagePixels = 16 << 20
)

// Server exposes one printer over HTTP.
type Server struct {
	printer   *printer.Printer
	converter *imgInternal.Converter
	logger    *zap.Logger
}

// Response is the body of every reply.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// TextRequest is the body of POST /print/text.
type TextRequest struct {
	Text    string                  `json:"text"`
	Style   *printer.CharacterStyle `json:"style,omitempty"`
	Reverse *bool                   `json:"reverse,omitempty"`
	Align   string                  `json:"align,omitempty"`
	Feed    int                     `json:"feed,omitempty"`
}

func New(p *printer.Printer, conv *imgInternal.Converter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	var c imgInternal.Converter
	if conv != nil {
		c = *conv
	}
	if !c.Density.Valid() {
		c.Density = imgInternal.EightDot
	}
	return &Server{
		printer:   p,
		converter: &c,
		logger:    logger.With(zap.String("component", "http")),
	}
}

// Router returns the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.logging())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, Response{Success: true, Message: "ok"})
	})
	r.POST("/reset", s.reset)
	r.POST("/print/text", s.printText)
	r.POST("/print/image", s.printImage)
	return r
}

func (s *Server) logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func (s *Server) reset(c *gin.Context) {
	if err := s.printer.Reset(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "printer reset"})
}

func (s *Server) printText(c *gin.Context) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Message: "invalid request body", Error: err.Error()})
		return
	}

	frames, text, err := textFrames(req)
	if err != nil {
		s.fail(c, err)
		return
	}

	if err := s.printer.Job(c.Request.Context(), "text", frames...); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "text printed", Data: gin.H{"bytes": len(text)}})
}

// textFrames builds the whole request in print order; nothing is sent if any
// part is invalid. text is the encoded body.
func textFrames(req TextRequest) (frames [][]byte, text []byte, err error) {
	if text, err = printer.EncodeText(req.Text); err != nil {
		return nil, nil, err
	}
	if req.Align != "" {
		f, err := printer.AlignFrame(req.Align)
		if err != nil {
			return nil, nil, err
		}
		frames = append(frames, f)
	}
	if req.Style != nil {
		frames = append(frames, printer.StyleFrame(*req.Style))
	}
	if req.Reverse != nil {
		frames = append(frames, printer.ReverseFrame(*req.Reverse))
	}
	frames = append(frames, text)

	feed, err := printer.FeedLinesFrame(req.Feed)
	if err != nil {
		return nil, nil, err
	}
	if req.Feed > 0 {
		frames = append(frames, feed)
	}
	return frames, text, nil
}

func (s *Server) printImage(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImageBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Message: "failed to read body", Error: err.Error()})
		return
	}
	if len(body) > maxImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, Response{Message: "image too large"})
		return
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Message: "unsupported image", Error: err.Error()})
		return
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxImagePixels {
		c.JSON(http.StatusRequestEntityTooLarge, Response{
			Message: "image dimensions out of range",
			Error:   fmt.Sprintf("%dx%d exceeds %d pixels", cfg.Width, cfg.Height, maxImagePixels),
		})
		return
	}

	img, format, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Message: "unsupported image", Error: err.Error()})
		return
	}

	conv := *s.converter
	if q := c.Query("density"); q != "" {
		dots, err := strconv.Atoi(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{Message: "invalid density", Error: err.Error()})
			return
		}
		if conv.Density, err = imgInternal.ParseDensity(dots); err != nil {
			s.fail(c, err)
			return
		}
	}

	m := conv.ToMatrix(img)
	if err := s.printer.PrintImage(c.Request.Context(), m, conv.Density); err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "image printed",
		Data: gin.H{
			"format": format,
			"width":  m.Width(),
			"height": m.Height(),
		},
	})
}

// fail maps the printer error kinds to status codes.
func (s *Server) fail(c *gin.Context, err error) {
	var (
		ve *printer.ValidationError
		ce *printer.ConfigurationError
		te *printer.TransportError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
	case errors.As(err, &te):
		status = http.StatusBadGateway
	case errors.As(err, &ce):
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("print request failed", zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, Response{Message: fmt.Sprintf("print failed (%d)", status), Error: err.Error()})
}
