package queue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
)

// sqsAPI is the subset of the SQS client used by the backend.
type sqsAPI interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

const messageIDAttribute = "MessageId"

// SQSQueue maps each queue name to the SQS queue <prefix><name>. Failed
// messages reappear after the visibility timeout; a redrive policy on the
// queue decides when they move to a dead-letter queue.
type SQSQueue struct {
	client            sqsAPI
	prefix            string
	waitTimeSeconds   int32
	visibilityTimeout int32
	urls              sync.Map // queue name -> URL
	log               logger.Logger
}

// NewSQSQueue loads AWS configuration and creates an SQSQueue. A custom
// endpoint such as LocalStack is honored.
func NewSQSQueue(ctx context.Context, settings *conf.SQSSettings, log logger.Logger) (*SQSQueue, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if settings.Region != "" {
		opts = append(opts, awsconfig.WithRegion(settings.Region))
	}
	if settings.AccessKeyID != "" && settings.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(settings.AccessKeyID, settings.SecretAccessKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, queueError(err, "load_aws_config", "")
	}

	client := sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if settings.Endpoint != "" {
			o.BaseEndpoint = aws.String(settings.Endpoint)
		}
	})
	return newSQSQueue(client, settings, log), nil
}

func newSQSQueue(client sqsAPI, settings *conf.SQSSettings, log logger.Logger) *SQSQueue {
	wait := settings.WaitTimeSeconds
	if wait <= 0 || wait > 20 {
		wait = 20
	}
	visibility := settings.VisibilityTimeout
	if visibility <= 0 {
		visibility = 60
	}
	return &SQSQueue{
		client:            client,
		prefix:            settings.QueuePrefix,
		waitTimeSeconds:   wait,
		visibilityTimeout: visibility,
		log:               log,
	}
}

func (q *SQSQueue) queueURL(ctx context.Context, queueName string) (string, error) {
	if url, ok := q.urls.Load(queueName); ok {
		return url.(string), nil
	}
	name := q.prefix + sanitizeName(queueName)
	out, err := q.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		return "", queueError(err, "get_queue_url", queueName)
	}
	url := aws.ToString(out.QueueUrl)
	q.urls.Store(queueName, url)
	return url, nil
}

// Publish implements Queue.
func (q *SQSQueue) Publish(ctx context.Context, queueName string, body []byte) error {
	url, err := q.queueURL(ctx, queueName)
	if err != nil {
		return err
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			messageIDAttribute: {DataType: aws.String("String"), StringValue: aws.String(uuid.NewString())},
		},
	})
	if err != nil {
		return queueError(err, "publish", queueName)
	}
	return nil
}

// Consume implements Queue with long polling.
func (q *SQSQueue) Consume(ctx context.Context, queueName string, handler Handler) error {
	url, err := q.queueURL(ctx, queueName)
	if err != nil {
		return err
	}
	for ctx.Err() == nil {
		out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:                    aws.String(url),
			MaxNumberOfMessages:         10,
			WaitTimeSeconds:             q.waitTimeSeconds,
			VisibilityTimeout:           q.visibilityTimeout,
			MessageAttributeNames:       []string{messageIDAttribute},
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameApproximateReceiveCount},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.log.Warn("sqs receive failed", logger.String("queue", queueName), logger.Error(err))
			if sleepCtx(ctx, 5*time.Second) != nil {
				return nil
			}
			continue
		}
		for i := range out.Messages {
			q.handle(ctx, queueName, url, &out.Messages[i], handler)
		}
	}
	return nil
}

func (q *SQSQueue) handle(ctx context.Context, queueName, url string, m *types.Message, handler Handler) {
	msg := Message{
		ID:      aws.ToString(m.MessageId),
		Queue:   queueName,
		Body:    []byte(aws.ToString(m.Body)),
		Attempt: 1,
	}
	if attr, ok := m.MessageAttributes[messageIDAttribute]; ok && attr.StringValue != nil {
		msg.ID = *attr.StringValue
	}
	if n, err := strconv.Atoi(m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]); err == nil {
		msg.Attempt = n
	}

	if err := handler(ctx, msg); err != nil {
		q.log.Debug("sqs message left for redelivery",
			logger.String("queue", queueName),
			logger.String("message_id", msg.ID),
			logger.Error(err))
		return
	}

	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := q.client.DeleteMessage(deleteCtx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(url),
		ReceiptHandle: m.ReceiptHandle,
	}); err != nil {
		q.log.Warn("sqs delete failed",
			logger.String("queue", queueName),
			logger.String("message_id", msg.ID),
			logger.Error(err))
	}
}

// Close implements Queue.
func (q *SQSQueue) Close() error { return nil }
