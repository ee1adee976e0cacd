package store

import (
	"context"
	"errors"
	"time"

	"aicaptain/internal/model"
)

// RouteRecord is one optimized route kept in the dashboard's route list.
type RouteRecord struct {
	ID          string               `json:"id"`
	VesselMMSI  string               `json:"vesselMmsi"`
	VesselName  string               `json:"vesselName"`
	StartPortID string               `json:"originPort"`
	EndPortID   string               `json:"destinationPort"`
	Route       model.OptimizedRoute `json:"route"`
	CreatedAt   time.Time            `json:"createdAt"`
}

// NewRecord summarizes a successful optimization.
func NewRecord(req model.OptimizationRequest, route model.OptimizedRoute) RouteRecord {
	return RouteRecord{
		VesselMMSI:  req.Vessel.MMSI,
		VesselName:  req.Vessel.Name,
		StartPortID: req.StartPortID,
		EndPortID:   req.EndPortID,
		Route:       route,
	}
}

// RouteHistory is the persistence interface for optimized routes.
type RouteHistory interface {
	// Add assigns ID and CreatedAt when empty.
	Add(ctx context.Context, rec RouteRecord) (RouteRecord, error)
	// List returns newest first; cursor is the id of the last item of the
	// previous page.
	List(ctx context.Context, cursor string, limit int) (items []RouteRecord, nextCursor string, err error)
	Get(ctx context.Context, id string) (RouteRecord, error)
	Delete(ctx context.Context, id string) error
}

var ErrNotFound = errors.New("not found")

const defaultLimit = 100
