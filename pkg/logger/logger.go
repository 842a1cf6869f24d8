package logger

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noah-isme/sma-presence-api/pkg/config"
	"github.com/noah-isme/sma-presence-api/pkg/middleware/requestid"
)

// ContextActorKey holds "role:identifier" once the JWT middleware has run.
const ContextActorKey = "log_actor"

// New builds the process logger. Production gets sampled JSON; everything else
// gets the development preset. LOG_FORMAT and LOG_LEVEL override either.
func New(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.Env == config.EnvProduction {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Encoding = "json"
	if cfg.Log.Format == "console" {
		zapCfg.Encoding = "console"
	}
	if lvl, err := zapcore.ParseLevel(cfg.Log.Level); err == nil && cfg.Log.Level != "" {
		zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logr, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return logr.With(zap.String("env", cfg.Env), zap.String("service", "attendance-api")), nil
}

// GinMiddleware writes one line per request, at warn for 4xx and error for 5xx.
// Channel upgrades are logged as they start because the handler only returns
// when the socket closes.
func GinMiddleware(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.IsWebsocket() {
			l.Info("ws_upgrade", requestFields(c)...)
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := append(requestFields(c),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		)
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			l.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			l.Warn("http_request", fields...)
		default:
			l.Info("http_request", fields...)
		}
	}
}

func requestFields(c *gin.Context) []zap.Field {
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("ip", c.ClientIP()),
	}
	if id := requestid.Value(c); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if actor := c.GetString(ContextActorKey); actor != "" {
		fields = append(fields, zap.String("actor", actor))
	}
	return fields
}
