package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	draftsync "github.com/iudanet/draftkeeper/internal/client/sync"
	"github.com/iudanet/draftkeeper/internal/models"
	"github.com/iudanet/draftkeeper/pkg/api"
)

// Transport exchanges snapshots of payload type T over the REST API.
type Transport[T any] struct {
	client *Client
}

var _ draftsync.Transport[models.Record] = (*Transport[models.Record])(nil)

// NewTransport creates a snapshot transport on top of client
func NewTransport[T any](client *Client) *Transport[T] {
	return &Transport[T]{client: client}
}

// Push отправляет снапшот на сервер (PUT). 409 означает, что на сервере
// более новая версия; она возвращается внутри *api.ConflictError.
// Ответ без тела означает, что снапшот принят как есть.
func (t *Transport[T]) Push(ctx context.Context, snapshot api.SyncSnapshot[T]) (*api.SyncSnapshot[T], error) {
	var accepted *api.SyncSnapshot[T]
	err := t.client.doRequest(ctx, http.MethodPut, snapshotPath(snapshot.EntityType, snapshot.EntityID), snapshot, &accepted)

	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		var remote api.SyncSnapshot[T]
		if jsonErr := json.Unmarshal(statusErr.Body, &remote); jsonErr != nil {
			return nil, fmt.Errorf("failed to decode conflicting snapshot: %w", jsonErr)
		}
		return nil, &api.ConflictError[T]{Remote: remote}
	}
	if err != nil {
		return nil, fmt.Errorf("push request failed: %w", err)
	}

	if accepted == nil {
		return &snapshot, nil
	}
	return accepted, nil
}

// Pull получает серверную копию сущности (GET)
func (t *Transport[T]) Pull(ctx context.Context, entityType, entityID string) (*api.SyncSnapshot[T], error) {
	var remote api.SyncSnapshot[T]
	err := t.client.doRequest(ctx, http.MethodGet, snapshotPath(entityType, entityID), nil, &remote)

	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", api.ErrSnapshotNotFound, models.EntityKey(entityType, entityID))
	}
	if err != nil {
		return nil, fmt.Errorf("pull request failed: %w", err)
	}

	return &remote, nil
}

func snapshotPath(entityType, entityID string) string {
	return fmt.Sprintf("/api/v1/snapshots/%s/%s", url.PathEscape(entityType), url.PathEscape(entityID))
}
