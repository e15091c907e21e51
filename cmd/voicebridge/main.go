package main

import (
	"context"
	"log"
	"net/http"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/workerpool"

	vbconfig "github.com/voicebridge/voicebridge/config"
	"github.com/voicebridge/voicebridge/internal/api"
	"github.com/voicebridge/voicebridge/internal/broker"
	"github.com/voicebridge/voicebridge/internal/httpsrv"
	"github.com/voicebridge/voicebridge/internal/notify"
	"github.com/voicebridge/voicebridge/internal/store"
	"github.com/voicebridge/voicebridge/internal/stt"
	"github.com/voicebridge/voicebridge/pkg/events"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadWithOIDC[vbconfig.BridgeConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	eventRef := cfg.GetEventsQueueName()
	eventURL := cfg.GetEventsQueueURL()

	ctx, srv := frame.NewService(
		frame.WithConfig(&cfg),
		frame.WithName("voicebridge"),
		frame.WithDatastore(),
		frame.WithRegisterPublisher(eventRef, eventURL),
		frame.WithWorkerPoolOptions(
			workerpool.WithPoolCount(cfg.WorkerPoolCount),
			workerpool.WithSinglePoolCapacity(cfg.WorkerPoolCapacity),
		),
	)
	defer srv.Stop(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	pub := events.NewPublisher(srv.QueueManager(), "voicebridge", eventRef)

	dbPool := srv.DatastoreManager().GetPool(ctx, "__default__pool_name__")
	repo := store.NewRepository(dbPool)

	// Session instructions come from prompt files, hot-reloaded on change.
	prompts := broker.NewPromptStore(cfg.PromptDir)
	if err := prompts.LoadAll(); err != nil {
		log.Printf("warning: loading prompts: %v", err)
	}
	go func() {
		if err := prompts.WatchAndReload(ctx.Done()); err != nil {
			log.Printf("warning: prompt watcher: %v", err)
		}
	}()

	brk := broker.New(broker.Config{
		APIKey:  cfg.RealtimeAPIKey,
		BaseURL: cfg.RealtimeBaseURL,
		Model:   cfg.RealtimeModel,
		Voice:   cfg.RealtimeVoice,
	}, prompts)

	transcriber, err := stt.New(cfg.TranscribeBackend, cfg.TranscriberConfig())
	if err != nil {
		log.Fatalf("creating transcriber %q: %v", cfg.TranscribeBackend, err)
	}
	defer transcriber.Close()

	// Outbound event delivery to registered webhook endpoints.
	notifyRepo := notify.NewRepository(dbPool)
	deliverer := notify.NewDeliverer(notifyRepo, notify.DelivererConfig{
		MaxRetries:        cfg.WebhookMaxRetries,
		TimeoutSec:        cfg.WebhookTimeoutSec,
		BackoffInitialSec: cfg.WebhookBackoffSec,
		BackoffMaxSec:     cfg.WebhookBackoffMax,
		CBFailThreshold:   cfg.CBFailThreshold,
		CBResetTimeoutSec: cfg.CBResetTimeoutSec,
	}, pool)
	notifySub := &notify.Subscriber{Repo: notifyRepo, Deliverer: deliverer, Pool: pool}

	mux := http.NewServeMux()
	api.NewHandler(brk, transcriber, repo, pub).RegisterRoutes(mux)
	notify.NewHandler(notifyRepo).RegisterRoutes(mux)

	srv.Init(ctx,
		frame.WithRegisterSubscriber(eventRef+".audit", eventURL, events.AuditSubscriber{}),
		frame.WithRegisterSubscriber(eventRef+".webhooks", eventURL, notifySub),
		frame.WithHTTPHandler(httpsrv.H2CHandler(httpsrv.RequestLogger(mux))),
	)

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}
