package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/schema"
)

// ClaimOutcome is the result of one claim attempt against a TileJob row.
type ClaimOutcome struct {
	Result         schema.ClaimResult
	Attempt        int64
	ClaimedAtEpoch int64
	Checkpoint     *schema.S3Checkpoint
}

// Claim performs the single conditional UpdateItem that is the whole of
// the claim protocol: it validates the row is claimable, increments the
// attempt counter, installs a fresh lock lease, and lazily persists the
// message's coordinates — all atomically. The predicate succeeds if the
// row is absent, FAILED, or PROCESSING with an expired or missing lock.
func (s *Store) Claim(ctx context.Context, msg schema.TileJobMessage, tileID string, now, lockSeconds int64) (ClaimOutcome, error) {
	lockUntil := now + lockSeconds

	cond := "attribute_not_exists(tile_id)" +
		" OR #status = :failed" +
		" OR (#status = :processing AND (attribute_not_exists(lock_until_epoch) OR lock_until_epoch < :now))"

	names := map[string]string{"#status": "status"}
	values := map[string]types.AttributeValue{
		":failed":     &types.AttributeValueMemberS{Value: string(schema.JobFailed)},
		":processing": &types.AttributeValueMemberS{Value: string(schema.JobProcessing)},
		":now":        numberValue(now),
	}

	setParts := []string{
		"#status = :processingNew",
		"attempts = if_not_exists(attempts, :zero) + :one",
		"lock_until_epoch = :lockUntil",
		"started_at_epoch = if_not_exists(started_at_epoch, :now)",
		"last_claimed_at_epoch = :now",
		"imagery_source = if_not_exists(imagery_source, :imagerySource)",
	}
	values[":processingNew"] = &types.AttributeValueMemberS{Value: string(schema.JobProcessing)}
	values[":zero"] = numberValue(0)
	values[":one"] = numberValue(1)
	values[":lockUntil"] = numberValue(lockUntil)
	values[":imagerySource"] = &types.AttributeValueMemberS{Value: string(msg.ImagerySource)}

	switch msg.ImagerySource {
	case schema.SourceMapbox:
		setParts = append(setParts,
			"z = if_not_exists(z, :z)",
			"x = if_not_exists(x, :x)",
			"y = if_not_exists(y, :y)",
		)
		values[":z"] = numberValue(int64(*msg.Z))
		values[":x"] = numberValue(int64(*msg.X))
		values[":y"] = numberValue(int64(*msg.Y))
		if msg.Region != nil {
			setParts = append(setParts, "region = if_not_exists(region, :region)")
			values[":region"] = &types.AttributeValueMemberS{Value: *msg.Region}
		}
	case schema.SourceGoogle:
		setParts = append(setParts,
			"lat = if_not_exists(lat, :lat)",
			"lon = if_not_exists(lon, :lon)",
			"zoom = if_not_exists(zoom, :zoom)",
		)
		values[":lat"] = floatValue(*msg.Lat)
		values[":lon"] = floatValue(*msg.Lon)
		values[":zoom"] = numberValue(int64(msg.GetZoom()))
	}

	updateExpr := "SET " + joinExpr(setParts)

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &s.tileJobsTable,
		Key:                       tileJobKey(msg.RunID, tileID),
		UpdateExpression:          &updateExpr,
		ConditionExpression:       &cond,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return s.resolveClaimConflict(ctx, msg.RunID, tileID)
		}
		return ClaimOutcome{}, fmt.Errorf("claim: %w", err)
	}

	return ClaimOutcome{
		Result:         schema.Claimed,
		Attempt:        attemptsFromItem(out.Attributes),
		ClaimedAtEpoch: now,
		Checkpoint:     checkpointFromItem(out.Attributes),
	}, nil
}

// resolveClaimConflict reads the current row after a conditional check
// failure to tell an ALREADY_COMPLETED outcome apart from a row that's
// legitimately locked by another worker.
func (s *Store) resolveClaimConflict(ctx context.Context, runID, tileID string) (ClaimOutcome, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tileJobsTable,
		Key:       tileJobKey(runID, tileID),
	})
	if err != nil {
		return ClaimOutcome{}, fmt.Errorf("resolve claim conflict: %w", err)
	}

	if tileJobStatus(out.Item) == string(schema.JobCompleted) {
		return ClaimOutcome{Result: schema.AlreadyCompleted}, nil
	}
	return ClaimOutcome{Result: schema.LockedByOther}, nil
}
