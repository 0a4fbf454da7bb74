// Reference object detection backend for Perception.
// Serves GET /api/health and POST /api/detect over a YOLOv8 ONNX model.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/fi-losopher/Perception/internal/config"
	plog "github.com/fi-losopher/Perception/internal/log"
	"github.com/fi-losopher/Perception/pkg/backend"
	"github.com/fi-losopher/Perception/pkg/yolo"
)

func main() {
	cfg := config.LoadBackend()
	flag.StringVar(&cfg.Port, "port", cfg.Port, "Listen port")
	flag.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "YOLOv8 ONNX model path")
	flag.StringVar(&cfg.ClassNamesPath, "classes", cfg.ClassNamesPath, "Class names file, one per line")
	flag.Float64Var(&cfg.Confidence, "confidence", cfg.Confidence, "Minimum detection confidence")
	flag.Float64Var(&cfg.NMS, "nms", cfg.NMS, "Non-maximum suppression threshold")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.Parse()

	plog.Init(cfg.LogLevel)
	logger := plog.L()

	opts := []backend.Option{backend.WithLogger(logger)}
	var detector backend.Detector

	classes, err := yolo.LoadClassNames(afero.NewOsFs(), cfg.ClassNamesPath)
	if err != nil {
		logger.Error("class names failed to load", "error", err)
		opts = append(opts, backend.WithLoadError(err))
	} else {
		yc := yolo.DefaultConfig()
		yc.ModelPath = cfg.ModelPath
		yc.ConfidenceThresh = float32(cfg.Confidence)
		yc.NMSThresh = float32(cfg.NMS)

		d, err := yolo.New(yc, classes, logger)
		if err != nil {
			logger.Error("model failed to load", "error", err)
			opts = append(opts, backend.WithLoadError(err))
		} else {
			defer d.Close()
			detector = d
			logger.Info("model loaded", "model", cfg.ModelPath, "classes", len(classes))
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           backend.New(detector, opts...).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("detection backend listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
