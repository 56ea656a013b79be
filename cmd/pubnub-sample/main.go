// Command pubnub-sample is a minimal demonstration binary: it wires the
// configuration and logging packages together, initializes a pubnub.Context,
// publishes one message, and performs a single subscribe cycle. It exists to
// exercise the library end-to-end, not as a feature of the library itself.
package main

import (
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/pubnub-go/internal/config"
	"github.com/adred-codev/pubnub-go/internal/logging"
	"github.com/adred-codev/pubnub-go/internal/metrics"
	"github.com/adred-codev/pubnub-go/internal/outcome"
	"github.com/adred-codev/pubnub-go/pkg/pubnub"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	channel := flag.String("channel", "pubnub-sample-channel", "channel to publish to and subscribe on")
	message := flag.String("message", `"hello from pubnub-sample"`, "JSON-encoded message body to publish")
	flag.Parse()

	logger := logging.Default()

	cfg, err := config.Load(&logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid log level")
	}
	logger = logging.New(logging.Config{Level: level, Format: logging.Format(cfg.LogFormat)})

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)

	ctx, err := pubnub.Init(pubnub.Options{
		PublishKey:         cfg.PublishKey,
		SubscribeKey:       cfg.SubscribeKey,
		AuthKey:            cfg.AuthKey,
		UUID:               cfg.UUID,
		Origin:             cfg.Origin,
		Scheme:             "https",
		DNSServer:          cfg.DNSServer,
		Mode:               pubnub.ModeSync,
		TransactionTimeout: time.Duration(cfg.TransactionTimeoutSeconds) * time.Second,
		SubscribeTimeout:   time.Duration(cfg.SubscribeTimeoutSeconds) * time.Second,
		Registry:           reg,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize pubnub context")
	}
	defer ctx.Free()

	logger.Info().Str("channel", *channel).Msg("publishing message")
	pubRes := ctx.Publish(*channel, []byte(*message), pubnub.PublishOptions{Store: true})
	logger.Info().
		Str("outcome", pubRes.Outcome.String()).
		Int("http_code", pubRes.HTTPCode).
		Int("publish_code", pubRes.PublishCode).
		Msg("publish complete")
	if pubRes.Outcome != outcome.OK {
		// A non-zero outcome kind is not necessarily fatal for a sample run;
		// continue to the subscribe step so the demo still shows the FSM's
		// normal path.
		logger.Warn().Msg("publish did not report success")
	}

	logger.Info().Str("channel", *channel).Msg("subscribing")
	subRes := ctx.Subscribe([]string{*channel}, "", "")
	logger.Info().
		Str("outcome", subRes.Outcome.String()).
		Int("message_count", len(subRes.Messages)).
		Str("timetoken", subRes.Timetoken).
		Msg("subscribe complete")

	for payload := ctx.Get(); payload != nil; payload = ctx.Get() {
		logger.Info().Str("channel", ctx.GetChannel()).Bytes("payload", payload).Msg("received message")
	}

	os.Exit(0)
}
