package store

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// maxErrorMessageBytes bounds the stored error_message field so a
// runaway upstream error body can't blow up item size.
const maxErrorMessageBytes = 500

// Fail writes the unconditional terminal FAILED state for a tile job.
func (s *Store) Fail(ctx context.Context, runID, tileID, errorCode, errorMessage string, finishedEpoch int64) error {
	if len(errorMessage) > maxErrorMessageBytes {
		errorMessage = errorMessage[:maxErrorMessageBytes]
	}

	expr := "SET #status = :failed, error_code = :code, error_message = :msg, finished_at_epoch = :finishedAt"
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                &s.tileJobsTable,
		Key:                      tileJobKey(runID, tileID),
		UpdateExpression:         &expr,
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed":     &types.AttributeValueMemberS{Value: "FAILED"},
			":code":       &types.AttributeValueMemberS{Value: errorCode},
			":msg":        &types.AttributeValueMemberS{Value: errorMessage},
			":finishedAt": numberValue(finishedEpoch),
		},
	})
	return err
}
