// Package awsclients wraps the AWS SDK v2 clients the pipeline depends
// on behind narrow interfaces, so tests can substitute fakes without
// risking interface drift from the real SDK.
package awsclients

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// DynamoDBClient is the subset of the DynamoDB API the state store
// adapter calls.
type DynamoDBClient interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// S3Client is the subset of the S3 API the object store and ingest
// driver call.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// SQSClient is the subset of the SQS API the worker coordinator and
// ingest driver call.
type SQSClient interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// SecretsManagerClient is the subset of the Secrets Manager API the
// secret cache calls.
type SecretsManagerClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Compile-time checks that both the thin wrappers below and the raw SDK
// clients satisfy the interfaces above.
var (
	_ DynamoDBClient       = (*DynamoDBClientImpl)(nil)
	_ S3Client             = (*S3ClientImpl)(nil)
	_ SQSClient            = (*SQSClientImpl)(nil)
	_ SecretsManagerClient = (*SecretsManagerClientImpl)(nil)

	_ DynamoDBClient       = (*dynamodb.Client)(nil)
	_ S3Client             = (*s3.Client)(nil)
	_ SQSClient            = (*sqs.Client)(nil)
	_ SecretsManagerClient = (*secretsmanager.Client)(nil)
)

// DynamoDBClientImpl adapts *dynamodb.Client to DynamoDBClient.
type DynamoDBClientImpl struct{ client *dynamodb.Client }

// NewDynamoDBClient wraps a concrete SDK client.
func NewDynamoDBClient(client *dynamodb.Client) *DynamoDBClientImpl {
	return &DynamoDBClientImpl{client: client}
}

func (c *DynamoDBClientImpl) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return c.client.UpdateItem(ctx, params, optFns...)
}

func (c *DynamoDBClientImpl) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return c.client.PutItem(ctx, params, optFns...)
}

func (c *DynamoDBClientImpl) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return c.client.GetItem(ctx, params, optFns...)
}

// S3ClientImpl adapts *s3.Client to S3Client.
type S3ClientImpl struct{ client *s3.Client }

func NewS3Client(client *s3.Client) *S3ClientImpl { return &S3ClientImpl{client: client} }

func (c *S3ClientImpl) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return c.client.GetObject(ctx, params, optFns...)
}

func (c *S3ClientImpl) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return c.client.PutObject(ctx, params, optFns...)
}

func (c *S3ClientImpl) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return c.client.HeadObject(ctx, params, optFns...)
}

// SQSClientImpl adapts *sqs.Client to SQSClient.
type SQSClientImpl struct{ client *sqs.Client }

func NewSQSClient(client *sqs.Client) *SQSClientImpl { return &SQSClientImpl{client: client} }

func (c *SQSClientImpl) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return c.client.ReceiveMessage(ctx, params, optFns...)
}

func (c *SQSClientImpl) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	return c.client.DeleteMessage(ctx, params, optFns...)
}

func (c *SQSClientImpl) SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error) {
	return c.client.SendMessageBatch(ctx, params, optFns...)
}

// SecretsManagerClientImpl adapts *secretsmanager.Client to SecretsManagerClient.
type SecretsManagerClientImpl struct{ client *secretsmanager.Client }

func NewSecretsManagerClient(client *secretsmanager.Client) *SecretsManagerClientImpl {
	return &SecretsManagerClientImpl{client: client}
}

func (c *SecretsManagerClientImpl) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	return c.client.GetSecretValue(ctx, params, optFns...)
}
