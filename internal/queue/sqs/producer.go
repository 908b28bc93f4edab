// Package sqsqueue carries delivery-status events from the webhook edge
// to the persistence worker. The gateway never writes delivery events
// inline; status callbacks are acknowledged fast and drained async.
package sqsqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// StatusEvent is the envelope for one provider delivery callback. Keep
// it small; SQS has a 256KB message size limit.
type StatusEvent struct {
	Provider      string    `json:"provider"`
	ProviderMsgID string    `json:"providerMsgId"`
	Recipient     string    `json:"recipient"`
	Status        string    `json:"status"`
	ErrorCode     string    `json:"errorCode,omitempty"`
	ReceivedAt    time.Time `json:"receivedAt"`
}

type StatusProducer struct {
	SQS      *sqs.Client
	QueueURL string
}

func (p *StatusProducer) Enqueue(ctx context.Context, ev StatusEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: str(string(body)),
	})
	return err
}

func str(s string) *string { return &s }
