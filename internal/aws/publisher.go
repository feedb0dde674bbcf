package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Publisher sends JSON events to one SQS queue.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
}

func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// Enabled reports whether a queue is configured. Local runs may leave it empty.
func (p *Publisher) Enabled() bool {
	return p != nil && p.SQS != nil && p.QueueURL != ""
}

// Publish marshals payload and sends it with an event_type attribute plus
// any extra string attributes.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload any, attributes map[string]string) error {
	if !p.Enabled() {
		return errors.New("publisher not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	msgAttrs := map[string]sqstypes.MessageAttributeValue{
		"event_type": {DataType: awsString("String"), StringValue: awsString(eventType)},
	}
	for k, v := range attributes {
		if v == "" {
			continue
		}
		msgAttrs[k] = sqstypes.MessageAttributeValue{
			DataType:    awsString("String"),
			StringValue: awsString(v),
		}
	}

	_, err = p.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          &p.QueueURL,
		MessageBody:       awsString(string(body)),
		MessageAttributes: msgAttrs,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
