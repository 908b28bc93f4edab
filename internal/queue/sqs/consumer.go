package sqsqueue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type StatusHandler func(ctx context.Context, ev StatusEvent) error

type StatusConsumer struct {
	SQS      *sqs.Client
	QueueURL string

	WaitTimeSeconds   int32
	MaxMessages       int32
	VisibilityTimeout int32
}

// PollConcurrent drains status events with a worker pool. A message is
// deleted only after its handler succeeds; failures stay on the queue
// for redrive or the DLQ.
func (c *StatusConsumer) PollConcurrent(ctx context.Context, workers int, handler StatusHandler) error {
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan types.Message, workers*2)
	errCh := make(chan error, 1)

	sendErr := func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}

	ack := func(m types.Message) {
		_, _ = c.SQS.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      &c.QueueURL,
			ReceiptHandle: m.ReceiptHandle,
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				if m.Body == nil {
					ack(m)
					continue
				}

				var ev StatusEvent
				if err := json.Unmarshal([]byte(*m.Body), &ev); err != nil {
					// Bad payload, delete to avoid endless redrive.
					ack(m)
					continue
				}

				if err := handler(ctx, ev); err == nil {
					ack(m)
				} else {
					slog.Error("status event handler error",
						"err", err, "provider", ev.Provider,
						"status", ev.Status, "provider_msg_id", ev.ProviderMsgID)
				}
			}
		}()
	}

	go func() {
		defer close(jobs)

		for {
			if ctx.Err() != nil {
				sendErr(ctx.Err())
				return
			}

			out, err := c.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
				QueueUrl:            &c.QueueURL,
				MaxNumberOfMessages: c.MaxMessages,
				WaitTimeSeconds:     c.WaitTimeSeconds,
				VisibilityTimeout:   c.VisibilityTimeout,
			})
			if err != nil {
				slog.Error("sqs receive failed", "err", err)
				time.Sleep(500 * time.Millisecond)
				continue
			}

			for _, m := range out.Messages {
				select {
				case jobs <- m:
				case <-ctx.Done():
					sendErr(ctx.Err())
					return
				}
			}
		}
	}()

	err := <-errCh

	// Workers finish whatever was already queued before the channel closed.
	wg.Wait()
	return err
}
