// internal/logger/log.go
package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"ata-pipeline/internal/config"

	stdlog "log"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init
//
// Configures the global zerolog logger once at startup.
//
//  1. Format:
//     - LOG_PRETTY=true: console writer for local runs
//     - LOG_PRETTY=false: JSON lines for CloudWatch
//
//  2. Common fields: every line carries "service" and "instance".
//
//  3. Sampling: with LOG_SAMPLE_N > 1, debug/info keep 1 in N.
//     Warn and above are never sampled.
//
// Usage:
//
//	logger.Init(cfg)
//	log.Info().Msg("pipeline started")
func Init(cfg config.Config) {
	zlog.Logger = New(cfg, os.Stdout)

	// route std log (third-party libs) through zerolog
	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}

// New builds the logger Init installs, writing to out.
func New(cfg config.Config, out io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); err == nil && l != zerolog.NoLevel {
		level = l
	}
	zerolog.SetGlobalLevel(level)

	w := out
	if cfg.LogPretty {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		}
	}

	base := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Logger()

	if cfg.LogSampleN > 1 {
		return base.Sample(&zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: cfg.LogSampleN},
			InfoSampler:  &zerolog.BasicSampler{N: cfg.LogSampleN},
		})
	}
	return base
}

// WithRun returns ctx carrying a child of the global logger tagged with a
// fresh run_id and the given site. Retrieve it with zerolog.Ctx.
func WithRun(ctx context.Context, site string) (context.Context, string) {
	runID := uuid.NewString()
	l := zlog.Logger.With().
		Str("run_id", runID).
		Str("site", site).
		Logger()
	return l.WithContext(ctx), runID
}
