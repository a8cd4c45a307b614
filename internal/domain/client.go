package domain

import (
	"context"
)

// QueryParams are the query-string parameters sent with a list call,
// such as "sortby" or "status".
type QueryParams map[string]string

// DatapiClient is the Data Stores API capability the tools depend on.
// Implementations own authentication, transport and download storage.
type DatapiClient interface {
	// CheckAuthentication verifies the configured API key.
	CheckAuthentication(ctx context.Context) error

	// GetJobs lists the caller's job ids in upstream order.
	GetJobs(ctx context.Context, params QueryParams) ([]string, error)

	// DownloadResults fetches the result asset of a finished job and
	// returns the local path it was written to.
	DownloadResults(ctx context.Context, jobID string) (string, error)

	// GetCollections lists catalogue collection ids in upstream order.
	GetCollections(ctx context.Context, params QueryParams) ([]string, error)

	// GetCollection fetches a single collection record.
	GetCollection(ctx context.Context, collectionID string) (*CollectionRecord, error)

	// Submit starts a retrieval job on collectionID and returns the
	// upstream-assigned job id.
	Submit(ctx context.Context, collectionID string, inputs map[string]interface{}) (string, error)
}
