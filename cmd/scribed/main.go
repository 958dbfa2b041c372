package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"github.com/mklatt/scribe/bridge"
	"github.com/mklatt/scribe/gateway"
	"github.com/mklatt/scribe/worker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var CommitHash = ""

type config struct {
	ModelDir   string `env:"MODEL_DIR" envDefault:"/models"`
	Port       int    `env:"PORT" envDefault:"2020"`
	ASRBinary  string `env:"ASR_BIN" envDefault:"qwen_asr"`
	ASRThreads int    `env:"ASR_THREADS"`

	Policy bridge.Policy
}

const environmentPrefix = "SCRIBE_"
const logLevelEnvKey = environmentPrefix + "LOG_LEVEL"

const shutdownTimeout = time.Second * 10

func createLog() *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = ""

	logLevelValue := os.Getenv(logLevelEnvKey)
	logLevel, logLevelErr := zapcore.ParseLevel(logLevelValue)

	if logLevelErr != nil {
		logLevel = zapcore.InfoLevel
	}

	rawLog := zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		logLevel,
	)).Named("scribe")

	if CommitHash != "" {
		rawLog = rawLog.With(zap.String("commit", CommitHash))
	}

	if logLevelErr != nil && logLevelValue != "" {
		rawLog.With(zap.String(logLevelEnvKey, logLevelValue)).Warn("unable to parse log level, using INFO")
	}

	return rawLog
}

func main() {
	parentLogger := createLog()
	defer parentLogger.Sync()

	log := parentLogger.Named("main")
	log.With(zap.String("min_log_level", parentLogger.Level().String())).Info("starting")

	if err := godotenv.Load(); err == nil {
		log.Info("loaded environment from .env")
	}

	cfg := config{}
	if err := env.ParseWithOptions(&cfg, env.Options{
		Prefix: environmentPrefix,
	}); err != nil {
		log.Fatal("failed to parse config", zap.Error(err))
	}

	info, err := os.Stat(cfg.ModelDir)
	if err != nil || !info.IsDir() {
		log.Fatal("model directory not found, mount it or set "+environmentPrefix+"MODEL_DIR",
			zap.String("model_dir", cfg.ModelDir))
	}

	gw := gateway.NewGateway(gateway.Options{
		ParentLogger: parentLogger,
		Worker: worker.Command{
			Path: cfg.ASRBinary,
			Args: worker.ASRArgs(cfg.ModelDir, cfg.ASRThreads),
		},
		Policy: cfg.Policy,
	})

	mux := http.NewServeMux()
	gw.Routes(mux)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := errgroup.Group{}

	g.Go(func() error {
		defer cancel()

		log.Info("listening",
			zap.String("endpoint", fmt.Sprintf("ws://0.0.0.0:%d%s", cfg.Port, gateway.StreamPath)),
			zap.String("model_dir", cfg.ModelDir))

		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-shutdownSignal:
		log.Info("received signal, shutting down")
	case <-ctx.Done():
		log.Info("context done, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}

	if err := g.Wait(); err != nil {
		log.Fatal("error group error", zap.Error(err))
	}
}
