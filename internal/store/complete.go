package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/schema"
)

// CompleteParams carries the vision-model result written at terminal
// COMPLETED time.
type CompleteParams struct {
	RunID         string
	TileID        string
	StatusAI      string
	Reasoning     string
	OpenAIUsage   map[string]any
	DurationMS    int64
	FinishedEpoch int64
}

// Complete writes the unconditional terminal COMPLETED state for a tile
// job. The write happens whether or not the caller's claim lease is still
// valid.
func (s *Store) Complete(ctx context.Context, p CompleteParams) error {
	usageAV, err := attributevalue.Marshal(p.OpenAIUsage)
	if err != nil {
		return fmt.Errorf("marshal openai usage: %w", err)
	}

	expr := "SET #status = :completed, status_ai = :statusAi, reasoning = :reasoning," +
		" openai_usage = :usage, duration_ms = :durationMs, finished_at_epoch = :finishedAt"

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                &s.tileJobsTable,
		Key:                      tileJobKey(p.RunID, p.TileID),
		UpdateExpression:         &expr,
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":completed":   &types.AttributeValueMemberS{Value: string(schema.JobCompleted)},
			":statusAi":    &types.AttributeValueMemberS{Value: p.StatusAI},
			":reasoning":   &types.AttributeValueMemberS{Value: p.Reasoning},
			":usage":       usageAV,
			":durationMs":  numberValue(p.DurationMS),
			":finishedAt":  numberValue(p.FinishedEpoch),
		},
	})
	return err
}
