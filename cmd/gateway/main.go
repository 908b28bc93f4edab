package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatgw/internal/ai"
	"chatgw/internal/awsutil"
	"chatgw/internal/compose"
	"chatgw/internal/config"
	"chatgw/internal/convo"
	"chatgw/internal/entitlement"
	"chatgw/internal/httpserver"
	"chatgw/internal/logging"
	"chatgw/internal/observability"
	"chatgw/internal/providers/meta"
	"chatgw/internal/providers/twilio"
	"chatgw/internal/providers/vonage"
	sqsqueue "chatgw/internal/queue/sqs"
	"chatgw/internal/router"
	"chatgw/internal/store/pg"
)

func main() {
	cfg := config.LoadGateway()
	log := logging.Init("gateway", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{})
	if err != nil {
		log.Error("gateway db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	st := pg.New(db)

	observability.Register(prometheus.DefaultRegisterer)

	aiClient := ai.NewClient(cfg.OpenAIKey, cfg.ChatModel, cfg.AITimeout, cfg.TempDir, log)
	conversations := convo.New(cfg.DataDir, cfg.ContextWindow)
	engine := entitlement.NewEngine(st, cfg.WeeklyCap, log)

	var splitter compose.Splitter = compose.Bisect{}
	if cfg.SplitStrategy == "sentence" {
		splitter = compose.SentenceHalves{}
	}

	disp := &router.Router{
		Users:         st,
		Ent:           engine,
		Convo:         conversations,
		AI:            aiClient,
		Split:         splitter,
		CharLimit:     cfg.CharLimit,
		PublicBaseURL: cfg.PublicBaseURL,
		Log:           log,
	}

	metaClient := meta.NewClient(cfg.MetaToken, cfg.MetaPhoneNumberID, "", cfg.MetaRPS, cfg.MetaBurst)
	twClient := twilio.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, cfg.TwilioBaseURL)
	twClient.StatusCallbackURL = cfg.PublicBaseURL + "/webhooks/twilio/status"
	voClient := vonage.NewClient(cfg.VonageAPIKey, cfg.VonageAPISecret, cfg.VonageFromNumber, cfg.VonageBaseURL)

	var statuses httpserver.StatusEnqueuer
	if cfg.StatusQueueURL != "" {
		sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion)
		if err != nil {
			log.Error("gateway sqs client init failed", "err", err)
			os.Exit(1)
		}
		statuses = &sqsqueue.StatusProducer{SQS: sqsClient, QueueURL: cfg.StatusQueueURL}
	}

	mediaHTTP := &http.Client{Timeout: 20 * time.Second}

	s := httpserver.New()
	(&httpserver.MetaWebhook{
		VerifyToken: cfg.MetaVerifyToken,
		Client:      metaClient,
		Router:      disp,
		Statuses:    statuses,
		TempDir:     cfg.TempDir,
		Log:         log,
	}).Register(s.Mux)
	(&httpserver.TwilioWebhook{
		AuthToken:     cfg.TwilioAuthToken,
		PublicBaseURL: cfg.PublicBaseURL,
		Client:        twClient,
		Router:        disp,
		Pending:       st,
		Statuses:      statuses,
		TempDir:       cfg.TempDir,
		HTTP:          mediaHTTP,
		Log:           log,
	}).Register(s.Mux)
	(&httpserver.VonageWebhook{
		Client:   voClient,
		Router:   disp,
		Pending:  st,
		Statuses: statuses,
		TempDir:  cfg.TempDir,
		HTTP:     mediaHTTP,
		Log:      log,
	}).Register(s.Mux)
	(&httpserver.VoiceNotes{Dir: cfg.TempDir, Log: log}).Register(s.Mux)

	s.Mux.HandleFunc("/healthz", httpserver.Healthz())
	s.Mux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second, func(c context.Context) error {
		return db.Ping(c)
	}))
	s.Mux.Handle("/metrics", promhttp.Handler())

	handler := httpserver.Logging(log, httpserver.Metrics(observability.HTTPRequests)(s.Mux))
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("gateway shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("gateway listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("gateway server failed", "err", err)
		os.Exit(1)
	}
}
