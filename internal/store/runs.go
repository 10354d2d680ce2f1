package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/schema"
)

// CreateRun inserts a new Run row, failing if one with the same run_id
// already exists.
func (s *Store) CreateRun(ctx context.Context, run schema.Run) error {
	item, err := runToItem(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	cond := "attribute_not_exists(run_id)"
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.runsTable,
		Item:                item,
		ConditionExpression: &cond,
	})
	return err
}

// SafeCreateRun is CreateRun but collapses a conditional-check failure
// (the run already exists) into a false return instead of an error.
func (s *Store) SafeCreateRun(ctx context.Context, run schema.Run) (bool, error) {
	err := s.CreateRun(ctx, run)
	if err == nil {
		return true, nil
	}
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return false, nil
	}
	return false, err
}

// UpdateRunCounters atomically adds deltaCompleted/deltaFailed to a
// Run's counters. Zero deltas for both is a no-op.
func (s *Store) UpdateRunCounters(ctx context.Context, runID string, deltaCompleted, deltaFailed int64) error {
	if deltaCompleted == 0 && deltaFailed == 0 {
		return nil
	}

	var adds []string
	values := map[string]types.AttributeValue{}
	if deltaCompleted != 0 {
		adds = append(adds, "completed_tiles :dc")
		values[":dc"] = numberValue(deltaCompleted)
	}
	if deltaFailed != 0 {
		adds = append(adds, "failed_tiles :df")
		values[":df"] = numberValue(deltaFailed)
	}

	expr := "ADD " + joinExpr(adds)
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &s.runsTable,
		Key:                       runKey(runID),
		UpdateExpression:          &expr,
		ExpressionAttributeValues: values,
	})
	return err
}

// SetTotalTiles unconditionally sets a Run's total_tiles field.
func (s *Store) SetTotalTiles(ctx context.Context, runID string, total int64) error {
	expr := "SET total_tiles = :t"
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.runsTable,
		Key:               runKey(runID),
		UpdateExpression:  &expr,
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": numberValue(total),
		},
	})
	return err
}

// SetRunStatus unconditionally sets a Run's status field, using an
// expression attribute name since "status" is a reserved word.
func (s *Store) SetRunStatus(ctx context.Context, runID string, status schema.RunStatus) error {
	expr := "SET #status = :s"
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                &s.runsTable,
		Key:                      runKey(runID),
		UpdateExpression:         &expr,
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: string(status)},
		},
	})
	return err
}

func joinExpr(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}
