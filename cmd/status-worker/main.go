package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatgw/internal/awsutil"
	"chatgw/internal/config"
	"chatgw/internal/httpserver"
	"chatgw/internal/logging"
	"chatgw/internal/observability"
	sqsqueue "chatgw/internal/queue/sqs"
	"chatgw/internal/store/pg"
	workerproc "chatgw/internal/worker"
)

func main() {
	cfg := config.LoadWorker()
	log := logging.Init("status-worker", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{})
	if err != nil {
		log.Error("worker db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	st := pg.New(db)

	sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion)
	if err != nil {
		log.Error("worker sqs client init failed", "err", err)
		os.Exit(1)
	}

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	defer startupCancel()

	if err := db.Ping(startupCtx); err != nil {
		log.Error("db not reachable", "err", err)
		os.Exit(1)
	}
	if _, err := sqsClient.GetQueueAttributes(startupCtx, &sqs.GetQueueAttributesInput{
		QueueUrl:       &cfg.StatusQueueURL,
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	}); err != nil {
		log.Error("sqs not reachable", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	consumer := &sqsqueue.StatusConsumer{
		SQS: sqsClient, QueueURL: cfg.StatusQueueURL,
		WaitTimeSeconds:   cfg.SQSWaitTime,
		MaxMessages:       cfg.SQSMaxMsgs,
		VisibilityTimeout: cfg.SQSVizTimeout,
	}
	processor := &workerproc.Processor{Store: st}

	healthMux := httpserver.New().Mux
	healthMux.HandleFunc("/healthz", httpserver.Healthz())
	healthMux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second,
		func(c context.Context) error { return db.Ping(c) },
		func(c context.Context) error {
			_, err := sqsClient.GetQueueAttributes(c, &sqs.GetQueueAttributesInput{
				QueueUrl:       &cfg.StatusQueueURL,
				AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
			})
			return err
		},
	))
	healthMux.Handle("/metrics", promhttp.Handler())

	healthSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpserver.Logging(log, healthMux),
	}

	healthErrCh := make(chan error, 1)
	go func() {
		log.Info("worker health listening", "port", cfg.Port)
		healthErrCh <- healthSrv.ListenAndServe()
	}()

	pollErrCh := make(chan error, 1)
	go func() {
		log.Info("worker starting poll", "queue_url", cfg.StatusQueueURL)
		pollErrCh <- consumer.PollConcurrent(ctx, cfg.WorkerConcurrency, func(ctx context.Context, ev sqsqueue.StatusEvent) error {
			start := time.Now()
			err := processor.Process(ctx, ev)
			if err != nil {
				log.Error("status event failed",
					"provider", ev.Provider, "provider_msg_id", ev.ProviderMsgID,
					"duration", time.Since(start), "err", err)
			}
			return err
		})
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-pollErrCh:
		if err != nil && err != context.Canceled {
			log.Error("worker poll failed", "err", err)
			os.Exit(1)
		}
	case err := <-healthErrCh:
		if err != nil && err != http.ErrServerClosed {
			log.Error("worker health server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("worker shutdown", "signal", sig.String())
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)

	select {
	case <-pollErrCh:
	case <-time.After(10 * time.Second):
		log.Info("worker shutdown timeout waiting for poll loop")
	}
}
