package db

import (
	"gorm.io/gorm/logger"
)

// NewLogger maps the app's log level onto gorm's. SQL tracing only
// shows up at debug and below; anything else stays quiet except errors.
func NewLogger(level string) logger.Interface {
	switch level {
	case "trace":
		return logger.Default.LogMode(logger.Info)
	case "debug":
		return logger.Default.LogMode(logger.Warn)
	default:
		return logger.Default.LogMode(logger.Silent)
	}
}
