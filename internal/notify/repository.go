package notify

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/pitabwire/frame/datastore/pool"

	"github.com/voicebridge/voicebridge/pkg/events"
)

// Repository persists endpoints and their delivery history.
type Repository struct {
	pool pool.Pool
}

// NewRepository creates a notify repository on the given datastore pool.
func NewRepository(pool pool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context, readOnly bool) *gorm.DB {
	return r.pool.DB(ctx, readOnly)
}

// CreateEndpoint persists a new endpoint.
func (r *Repository) CreateEndpoint(ctx context.Context, e *Endpoint) error {
	return r.db(ctx, false).Create(e).Error
}

// GetEndpoint returns an endpoint by ID.
func (r *Repository) GetEndpoint(ctx context.Context, id string) (*Endpoint, error) {
	var e Endpoint
	if err := r.db(ctx, true).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEndpoints returns all endpoints.
func (r *Repository) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	var out []Endpoint
	err := r.db(ctx, true).Find(&out).Error
	return out, err
}

// ListForEventType returns active endpoints subscribed to the given event
// type.
func (r *Repository) ListForEventType(ctx context.Context, et events.EventType) ([]Endpoint, error) {
	var out []Endpoint
	err := r.db(ctx, true).
		Where("is_active = ? AND (event_types = '[]' OR event_types @> ?)", true, fmt.Sprintf(`[%q]`, et)).
		Find(&out).Error
	return out, err
}

// DeleteEndpoint soft-deletes an endpoint.
func (r *Repository) DeleteEndpoint(ctx context.Context, id string) error {
	return r.db(ctx, false).Where("id = ?", id).Delete(&Endpoint{}).Error
}

// RecordDelivery persists one delivery attempt.
func (r *Repository) RecordDelivery(ctx context.Context, d *Delivery) error {
	return r.db(ctx, false).Create(d).Error
}

// ListDeliveries returns delivery attempts for an endpoint, newest first.
func (r *Repository) ListDeliveries(ctx context.Context, endpointID string, limit int) ([]Delivery, error) {
	q := r.db(ctx, true).
		Where("endpoint_id = ?", endpointID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []Delivery
	err := q.Find(&out).Error
	return out, err
}
