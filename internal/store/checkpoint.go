package store

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// CheckpointS3 unconditionally records that imagery for a tile job has
// been durably uploaded, enabling a later retry to skip straight to
// classification instead of re-fetching from the upstream provider.
func (s *Store) CheckpointS3(ctx context.Context, runID, tileID, bucket, key string) error {
	expr := "SET s3_bucket = :b, s3_key = :k"
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tileJobsTable,
		Key:               tileJobKey(runID, tileID),
		UpdateExpression:  &expr,
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":b": &types.AttributeValueMemberS{Value: bucket},
			":k": &types.AttributeValueMemberS{Value: key},
		},
	})
	return err
}
