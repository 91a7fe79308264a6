package logger

import (
	"io"
	"os"

	"escrow-node/internal/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the global logger instance.
var Log = logrus.New()

// InitLogger initializes the global logger based on the provided configuration.
func InitLogger(cfg config.LoggerConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	Log.SetLevel(level)

	switch cfg.Format {
	case "json":
		Log.SetFormatter(&logrus.JSONFormatter{})
	default:
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	if cfg.FilePath != "" {
		lumberjackLogger := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		// Log to both file and stdout
		mw := io.MultiWriter(os.Stdout, lumberjackLogger)
		Log.SetOutput(mw)
	} else {
		Log.SetOutput(os.Stdout)
	}

	return nil
}
