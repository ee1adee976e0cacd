// Package catalog loads the waypoint catalog used to populate selectable
// route endpoints.
package catalog

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"aicaptain/internal/metrics"
	"aicaptain/internal/model"
)

// Source fetches waypoints; *transport.Client satisfies it.
type Source interface {
	Waypoints(ctx context.Context) ([]model.Waypoint, error)
}

// fetchTimeout bounds a shared fetch, which no single caller's context
// controls.
const fetchTimeout = 30 * time.Second

// Loader fetches the catalog on every Load. Concurrent calls share a
// single fetch.
type Loader struct {
	src   Source
	log   *zap.Logger
	group singleflight.Group
}

func NewLoader(src Source, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{src: src, log: log}
}

// Load returns the waypoints, or an empty slice when the service cannot be
// reached. The catalog is advisory, so failures are logged, not returned.
func (l *Loader) Load(ctx context.Context) []model.Waypoint {
	ch := l.group.DoChan("waypoints", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return l.src.Waypoints(fetchCtx)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res.Err = ctx.Err()
	}
	v, err := res.Val, res.Err
	if err != nil {
		metrics.CatalogLoads.WithLabelValues("unavailable").Inc()
		l.log.Warn("waypoint catalog unavailable", zap.Error(err))
		return []model.Waypoint{}
	}
	wps, _ := v.([]model.Waypoint)
	metrics.CatalogLoads.WithLabelValues("ok").Inc()
	metrics.CatalogSize.Set(float64(len(wps)))
	out := make([]model.Waypoint, 0, len(wps))
	return append(out, wps...)
}

// Catalog is the read-only id -> Waypoint mapping held after load.
type Catalog struct {
	order []model.Waypoint
	byID  map[string]model.Waypoint
}

// New indexes wps. Entries without an id are skipped; on duplicate ids the
// first entry wins.
func New(wps []model.Waypoint) *Catalog {
	c := &Catalog{byID: make(map[string]model.Waypoint, len(wps))}
	for _, wp := range wps {
		if wp.ID == "" {
			continue
		}
		if _, dup := c.byID[wp.ID]; dup {
			continue
		}
		c.byID[wp.ID] = wp
		c.order = append(c.order, wp)
	}
	return c
}

func (c *Catalog) Lookup(id string) (model.Waypoint, bool) {
	if c == nil {
		return model.Waypoint{}, false
	}
	wp, ok := c.byID[id]
	return wp, ok
}

// List returns a copy of the waypoints in load order.
func (c *Catalog) List() []model.Waypoint {
	if c == nil {
		return []model.Waypoint{}
	}
	out := make([]model.Waypoint, len(c.order))
	copy(out, c.order)
	return out
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// DefaultEndpoints mirrors the form's initial selection: the first entry
// as start and the second (or the first again) as end.
func (c *Catalog) DefaultEndpoints() (start, end string, ok bool) {
	if c.Len() == 0 {
		return "", "", false
	}
	end = c.order[0].ID
	if len(c.order) > 1 {
		end = c.order[1].ID
	}
	return c.order[0].ID, end, true
}
