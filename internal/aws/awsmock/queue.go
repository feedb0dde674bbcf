package awsmock

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQS records sent messages.
type SQS struct {
	mu       sync.Mutex
	Messages []*sqs.SendMessageInput
	Err      error
}

func (s *SQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	s.Messages = append(s.Messages, params)
	return &sqs.SendMessageOutput{MessageId: strPtr(fmt.Sprintf("msg-%d", len(s.Messages)))}, nil
}

// EventTypes lists the event_type attribute of every sent message.
func (s *SQS) EventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.Messages))
	for _, m := range s.Messages {
		if attr, ok := m.MessageAttributes["event_type"]; ok && attr.StringValue != nil {
			out = append(out, *attr.StringValue)
		}
	}
	return out
}

// CloudWatch records metric batches.
type CloudWatch struct {
	mu      sync.Mutex
	Batches []*cloudwatch.PutMetricDataInput
	Err     error
}

func (c *CloudWatch) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	c.Batches = append(c.Batches, params)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

// Values sums every datum recorded under name.
func (c *CloudWatch) Values(name string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total float64
	for _, b := range c.Batches {
		for _, d := range b.MetricData {
			if d.MetricName != nil && *d.MetricName == name && d.Value != nil {
				total += *d.Value
			}
		}
	}
	return total
}
