package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client used by SQSQueue.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
	GetQueueAttributes(ctx context.Context, in *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// SQSConfig controls the SQS backend.
type SQSConfig struct {
	// Required: fully qualified SQS queue URL
	QueueURL string

	// Optional: AWS region; falls back to default chain if empty
	Region string

	// Optional: custom endpoint, e.g. localstack
	Endpoint string

	// ReceiveMessage long polling seconds (0..20). If DequeueWithTimeout supplies
	// a shorter timeout, that value is used instead for that call.
	WaitTimeSeconds int

	// Visibility timeout in seconds for received messages.
	VisibilityTimeout int

	// FIFO mode. MessageGroupID defaults to the queue name.
	FIFO           bool
	MessageGroupID string

	// Backoff in seconds when Nack with requeue=true. 0 makes it immediately available.
	RequeueBackoffSeconds int
}

// DefaultSQSConfig provides sensible defaults.
func DefaultSQSConfig() SQSConfig {
	return SQSConfig{
		WaitTimeSeconds:   20,
		VisibilityTimeout: 30,
	}
}

// SQSQueue implements Queue backed by AWS SQS. The queue name is ignored;
// QueueURL controls the destination.
type SQSQueue struct {
	client  SQSAPI
	cfg     SQSConfig
	mu      sync.Mutex
	handles map[string]string // requestID -> receiptHandle
}

var _ Queue = (*SQSQueue)(nil)

// NewSQSQueue constructs the backend using the default AWS config chain.
func NewSQSQueue(ctx context.Context, cfg SQSConfig) (*SQSQueue, error) {
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("sqs: QueueURL is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awscfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := sqs.NewFromConfig(awscfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewSQSQueueFromClient(client, cfg), nil
}

// NewSQSQueueFromClient constructs the backend from an existing client.
func NewSQSQueueFromClient(client SQSAPI, cfg SQSConfig) *SQSQueue {
	base := DefaultSQSConfig()
	if cfg.WaitTimeSeconds == 0 {
		cfg.WaitTimeSeconds = base.WaitTimeSeconds
	}
	if cfg.VisibilityTimeout == 0 {
		cfg.VisibilityTimeout = base.VisibilityTimeout
	}
	return &SQSQueue{
		client:  client,
		cfg:     cfg,
		handles: make(map[string]string),
	}
}

// Enqueue sends a job to SQS.
func (q *SQSQueue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	if job == nil {
		return fmt.Errorf("enqueue: nil job")
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.cfg.QueueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"RequestId": {
				DataType:    aws.String("String"),
				StringValue: aws.String(job.RequestID),
			},
		},
	}
	if q.cfg.FIFO {
		groupID := q.cfg.MessageGroupID
		if groupID == "" {
			groupID = queueName
		}
		input.MessageGroupId = aws.String(groupID)
		input.MessageDeduplicationId = aws.String(job.RequestID)
	}
	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("sqs SendMessage: %w", err)
	}
	return nil
}

// DequeueWithTimeout performs a long-poll ReceiveMessage and returns a single
// job, or ErrEmpty.
func (q *SQSQueue) DequeueWithTimeout(ctx context.Context, _ string, timeout time.Duration) (*Job, error) {
	waitSec := q.cfg.WaitTimeSeconds
	if timeout > 0 && int(timeout/time.Second) < waitSec {
		waitSec = int(timeout / time.Second)
	}
	waitSec = max(0, min(waitSec, 20))

	input := &sqs.ReceiveMessageInput{
		QueueUrl: aws.String(q.cfg.QueueURL),
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
			sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
		},
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     int32(waitSec),
	}
	if q.cfg.VisibilityTimeout > 0 {
		input.VisibilityTimeout = int32(q.cfg.VisibilityTimeout)
	}
	out, err := q.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("sqs ReceiveMessage: %w", err)
	}
	if len(out.Messages) == 0 || out.Messages[0].Body == nil {
		return nil, ErrEmpty
	}
	msg := out.Messages[0]

	var job Job
	if err := json.Unmarshal([]byte(*msg.Body), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job body: %w", err)
	}
	job.Attempts = 1
	if rc, ok := msg.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
		if n, convErr := strconv.Atoi(rc); convErr == nil && n > 0 {
			job.Attempts = n
		}
	}
	if msg.ReceiptHandle != nil {
		q.mu.Lock()
		q.handles[job.RequestID] = *msg.ReceiptHandle
		q.mu.Unlock()
	}
	return &job, nil
}

// Ack deletes the message using the stored receipt handle.
func (q *SQSQueue) Ack(ctx context.Context, _ string, requestID string) error {
	receipt, ok := q.takeHandle(requestID)
	if !ok {
		return fmt.Errorf("ack: receipt handle not found for job %s", requestID)
	}
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.cfg.QueueURL),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return fmt.Errorf("sqs DeleteMessage: %w", err)
	}
	return nil
}

// Nack makes the message visible again after the requeue backoff, or deletes
// it when requeue is false.
func (q *SQSQueue) Nack(ctx context.Context, _ string, requestID string, requeue bool) error {
	receipt, ok := q.takeHandle(requestID)
	if !ok {
		return fmt.Errorf("nack: receipt handle not found for job %s", requestID)
	}
	if !requeue {
		_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(q.cfg.QueueURL),
			ReceiptHandle: aws.String(receipt),
		})
		if err != nil {
			return fmt.Errorf("sqs DeleteMessage: %w", err)
		}
		return nil
	}
	_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.cfg.QueueURL),
		ReceiptHandle:     aws.String(receipt),
		VisibilityTimeout: int32(max(0, q.cfg.RequeueBackoffSeconds)),
	})
	if err != nil {
		return fmt.Errorf("sqs ChangeMessageVisibility: %w", err)
	}
	return nil
}

// Len returns ApproximateNumberOfMessages (ready only).
func (q *SQSQueue) Len(ctx context.Context, _ string) (int, error) {
	out, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(q.cfg.QueueURL),
		AttributeNames: []sqstypes.QueueAttributeName{
			sqstypes.QueueAttributeNameApproximateNumberOfMessages,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("sqs GetQueueAttributes: %w", err)
	}
	s := out.Attributes[string(sqstypes.QueueAttributeNameApproximateNumberOfMessages)]
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("sqs queue length %q: %w", s, err)
	}
	return n, nil
}

// Close implements Queue. The SQS client holds no resources.
func (q *SQSQueue) Close() error {
	return nil
}

func (q *SQSQueue) takeHandle(requestID string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	h, ok := q.handles[requestID]
	delete(q.handles, requestID)
	return h, ok
}
