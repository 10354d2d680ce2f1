package store

import (
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/schema"
)

// numberValue builds an AttributeValue number from an int64, the
// representation DynamoDB's N type requires.
func numberValue(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

// floatValue builds an AttributeValue number from a float64, formatted
// without trailing zeros the way DynamoDB expects numeric literals.
func floatValue(v float64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(v, 'f', -1, 64)}
}

// runKey builds the primary key for a Run item.
func runKey(runID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"run_id": &types.AttributeValueMemberS{Value: runID},
	}
}

// tileJobKey builds the composite primary key for a TileJob item.
func tileJobKey(runID, tileID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"run_id":  &types.AttributeValueMemberS{Value: runID},
		"tile_id": &types.AttributeValueMemberS{Value: tileID},
	}
}

// runFromItem unmarshals a DynamoDB item into a Run, tolerating absent
// optional fields.
func runFromItem(item map[string]types.AttributeValue) (schema.Run, error) {
	var raw struct {
		RunID           string `dynamodbav:"run_id"`
		Status          string `dynamodbav:"status"`
		TotalTiles      int64  `dynamodbav:"total_tiles"`
		CompletedTiles  int64  `dynamodbav:"completed_tiles"`
		FailedTiles     int64  `dynamodbav:"failed_tiles"`
		SourceBucket    string `dynamodbav:"source_bucket"`
		SourceKey       string `dynamodbav:"source_key"`
		CreatedAtEpoch  int64  `dynamodbav:"created_at_epoch"`
		FinishedAtEpoch *int64 `dynamodbav:"finished_at_epoch"`
	}
	if err := attributevalue.UnmarshalMap(item, &raw); err != nil {
		return schema.Run{}, err
	}
	return schema.Run{
		RunID:           raw.RunID,
		Status:          schema.RunStatus(raw.Status),
		TotalTiles:      raw.TotalTiles,
		CompletedTiles:  raw.CompletedTiles,
		FailedTiles:     raw.FailedTiles,
		SourceBucket:    raw.SourceBucket,
		SourceKey:       raw.SourceKey,
		CreatedAtEpoch:  raw.CreatedAtEpoch,
		FinishedAtEpoch: raw.FinishedAtEpoch,
	}, nil
}

// runToItem marshals a Run into a DynamoDB item for PutItem.
func runToItem(run schema.Run) (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMap(struct {
		RunID          string `dynamodbav:"run_id"`
		Status         string `dynamodbav:"status"`
		TotalTiles     int64  `dynamodbav:"total_tiles"`
		CompletedTiles int64  `dynamodbav:"completed_tiles"`
		FailedTiles    int64  `dynamodbav:"failed_tiles"`
		SourceBucket   string `dynamodbav:"source_bucket"`
		SourceKey      string `dynamodbav:"source_key"`
		CreatedAtEpoch int64  `dynamodbav:"created_at_epoch"`
	}{
		RunID:          run.RunID,
		Status:         string(run.Status),
		TotalTiles:     run.TotalTiles,
		CompletedTiles: run.CompletedTiles,
		FailedTiles:    run.FailedTiles,
		SourceBucket:   run.SourceBucket,
		SourceKey:      run.SourceKey,
		CreatedAtEpoch: run.CreatedAtEpoch,
	})
}

// tileJobStatus reads just the status field out of a raw item, used to
// disambiguate claim outcomes after a conditional check failure.
func tileJobStatus(item map[string]types.AttributeValue) string {
	v, ok := item["status"]
	if !ok {
		return ""
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return ""
	}
	return s.Value
}

// tileJobLockUntil reads the lock_until_epoch field, if present.
func tileJobLockUntil(item map[string]types.AttributeValue) (int64, bool) {
	v, ok := item["lock_until_epoch"]
	if !ok {
		return 0, false
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	var out int64
	if err := attributevalue.Unmarshal(n, &out); err != nil {
		return 0, false
	}
	return out, true
}

// checkpointFromItem extracts the S3 checkpoint fields, if present.
func checkpointFromItem(item map[string]types.AttributeValue) *schema.S3Checkpoint {
	bucket, hasBucket := item["s3_bucket"].(*types.AttributeValueMemberS)
	key, hasKey := item["s3_key"].(*types.AttributeValueMemberS)
	if !hasBucket || !hasKey {
		return nil
	}
	return &schema.S3Checkpoint{Bucket: bucket.Value, Key: key.Value}
}

// attemptsFromItem reads the attempts counter, if present.
func attemptsFromItem(item map[string]types.AttributeValue) int64 {
	v, ok := item["attempts"]
	if !ok {
		return 0
	}
	var out int64
	_ = attributevalue.Unmarshal(v, &out)
	return out
}
