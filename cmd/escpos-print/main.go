package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"

	"github.com/AlexStarov/escpos-dotimage/config"
	imgInternal "github.com/AlexStarov/escpos-dotimage/image"
	logInternal "github.com/AlexStarov/escpos-dotimage/log"
	"github.com/AlexStarov/escpos-dotimage/printer"
	"github.com/AlexStarov/escpos-dotimage/server"
)

type options struct {
	configPath string
	imagePath  string
	text       string
	style      printer.CharacterStyle
	cut        bool
	serve      bool
}

func main() {
	fs := pflag.NewFlagSet("escpos-print", pflag.ExitOnError)
	var opts options
	fs.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	fs.StringVarP(&opts.imagePath, "image", "i", "", "image to print (png, jpeg, gif, bmp)")
	fs.StringVarP(&opts.text, "text", "t", "", "text to print after the image")
	fs.BoolVar(&opts.style.SmallFont, "small", false, "small font")
	fs.BoolVar(&opts.style.Emphasized, "bold", false, "emphasized text")
	fs.BoolVar(&opts.style.DoubleHeight, "double-height", false, "double height text")
	fs.BoolVar(&opts.style.DoubleWidth, "double-width", false, "double width text")
	fs.BoolVar(&opts.style.Underline, "underline", false, "underlined text")
	fs.BoolVar(&opts.cut, "cut", false, "cut the paper at the end")
	fs.BoolVar(&opts.serve, "serve", false, "serve the HTTP print API instead of printing once")
	fs.String("transport.kind", "usb", "usb, serial, tcp, lpd, file or spooler")
	fs.Int("image.density", 24, "bit image density, 8 or 24")
	fs.String("image.binarize", "alpha", "alpha, lightness or dither")
	_ = fs.Parse(os.Args[1:])

	if err := run(opts, fs); err != nil {
		fmt.Fprintln(os.Stderr, "escpos-print:", err)
		os.Exit(1)
	}
}

func run(opts options, fs *pflag.FlagSet) error {
	cfg, err := config.LoadWithFlags(opts.configPath, fs)
	if err != nil {
		return err
	}

	logger, err := logInternal.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := printer.Open(ctx, cfg.Transport, printer.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Error("close printer", zap.Error(err))
		}
	}()

	conv := converter(cfg.Image)

	if opts.serve {
		return serve(ctx, cfg.Server, server.New(p, conv, logger), logger)
	}

	if err := p.Reset(ctx); err != nil {
		return err
	}
	if opts.imagePath != "" {
		img, err := loadImage(opts.imagePath)
		if err != nil {
			return err
		}
		if err := conv.Print(ctx, img, p); err != nil {
			return err
		}
	}
	if opts.text != "" {
		if err := p.SetCharacterStyle(ctx, opts.style); err != nil {
			return err
		}
		if err := p.SendText(ctx, opts.text+"\n"); err != nil {
			return err
		}
	}
	if opts.cut {
		if err := p.FeedLines(ctx, 3); err != nil {
			return err
		}
		return p.Cut(ctx)
	}
	return nil
}

func converter(cfg config.ImageConfig) *imgInternal.Converter {
	conv := &imgInternal.Converter{
		MaxWidth: cfg.MaxWidth,
		Density:  imgInternal.Density(cfg.Density),
	}
	switch cfg.Binarize {
	case "lightness":
		conv.Rule = imgInternal.LightnessRule{Threshold: cfg.Threshold}
	case "dither":
		conv.Rule = imgInternal.DitherRule{}
	default:
		conv.Rule = imgInternal.AlphaRule{}
	}
	return conv
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func serve(ctx context.Context, cfg config.ServerConfig, s *server.Server, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("address", cfg.Address))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
