// Package store implements the State Store Adapter and the Claim &
// Checkpoint Protocol against DynamoDB: conditional run creation,
// unconditional counter aggregation, and the single-UpdateItem claim CAS
// that is the heart of the pipeline's exactly-once durable completion
// guarantee.
package store

import (
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/awsclients"
)

// Store is the State Store Adapter: all reads and writes against the
// Run and TileJob tables go through it.
type Store struct {
	client        awsclients.DynamoDBClient
	runsTable     string
	tileJobsTable string
}

// New builds a Store bound to the given table names.
func New(client awsclients.DynamoDBClient, runsTable, tileJobsTable string) *Store {
	return &Store{client: client, runsTable: runsTable, tileJobsTable: tileJobsTable}
}
