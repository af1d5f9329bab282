package logger

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var Log = logrus.New()

func init() {
	Log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
	Log.SetOutput(os.Stdout)
	Log.SetLevel(logrus.InfoLevel)
}

// SetLevel parses level names like "debug" or "warn"; unknown names keep the current level.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		Warn("unknown log level, keeping default", map[string]any{"level": level})
		return
	}
	Log.SetLevel(lvl)
}

func Info(message string, fields map[string]any) {
	Log.WithFields(fields).Info(message)
}

func Warn(message string, fields map[string]any) {
	Log.WithFields(fields).Warn(message)
}

func Error(message string, fields map[string]any) {
	Log.WithFields(fields).Error(message)
}

func Fatal(message string, fields map[string]any) {
	Log.WithFields(fields).Fatal(message)
}

// Middleware logs one line per request.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := map[string]any{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		switch {
		case c.Writer.Status() >= 500:
			Error("request", fields)
		case c.Writer.Status() >= 400:
			Warn("request", fields)
		default:
			Info("request", fields)
		}
	}
}
