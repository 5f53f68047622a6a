package main

import (
	"context"
	"time"

	"ata-pipeline/internal/app"
	"ata-pipeline/internal/config"
	"ata-pipeline/internal/logger"
	"ata-pipeline/internal/trigger"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	zlog "github.com/rs/zerolog/log"
)

// main serves S3 object-created notifications. The App (and its
// database pool) is built once per sandbox and reused across
// invocations; metrics are pushed after each invocation since the
// sandbox may be frozen at any point afterwards.
func main() {
	cfg := config.Load()
	logger.Init(cfg)

	a, err := app.New(context.Background(), cfg, app.Options{})
	if err != nil {
		zlog.Fatal().Err(err).Msg("init")
	}
	h := trigger.NewHandler(a.Runner, cfg.BucketPrefix)

	lambda.Start(func(ctx context.Context, ev events.S3Event) {
		h.Handle(ctx, ev)

		pushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.PushMetrics(pushCtx, cfg.ServiceName)
	})
}
