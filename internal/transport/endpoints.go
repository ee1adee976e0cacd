package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"aicaptain/internal/model"
)

// Optimize submits one optimization request.
func (c *Client) Optimize(ctx context.Context, req model.OptimizationRequest) (model.OptimizedRoute, error) {
	var out model.OptimizedRoute
	if err := c.do(ctx, http.MethodPost, "/route/optimize", nil, req, &out); err != nil {
		return model.OptimizedRoute{}, err
	}
	if err := checkRoute(out); err != nil {
		return model.OptimizedRoute{}, NormalizeError(&DecodeError{Status: http.StatusOK, Err: err})
	}
	if out.Blockages == nil {
		out.Blockages = []model.Blockage{}
	}
	return out, nil
}

// checkRoute rejects results that break the route contract instead of
// handing them to the renderer.
func checkRoute(r model.OptimizedRoute) error {
	if len(r.Waypoints) < 2 {
		return fmt.Errorf("route has %d waypoints, want at least 2", len(r.Waypoints))
	}
	m := r.Metrics
	for name, v := range map[string]float64{
		"distance_nm": m.DistanceNM, "time_hours": m.TimeHours, "fuel_tons": m.FuelTons,
		"cost_usd": m.CostUSD, "risk_score": m.RiskScore,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("metric %s out of range: %v", name, v)
		}
	}
	return nil
}

// Waypoints fetches the waypoint catalog.
func (c *Client) Waypoints(ctx context.Context) ([]model.Waypoint, error) {
	var out struct {
		Waypoints []model.Waypoint `json:"waypoints"`
	}
	if err := c.do(ctx, http.MethodGet, "/waypoints", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Waypoints, nil
}

// Alternatives asks for up to n routes scored with different weightings.
func (c *Client) Alternatives(ctx context.Context, start, end string, n int) ([]model.Alternative, error) {
	if n <= 0 {
		n = 3
	}
	q := url.Values{"start": {start}, "end": {end}, "num_alternatives": {strconv.Itoa(n)}}
	var out struct {
		Alternatives []model.Alternative `json:"alternatives"`
	}
	if err := c.do(ctx, http.MethodGet, "/route/alternatives", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Alternatives, nil
}

func (c *Client) RegisterVoyage(ctx context.Context, reg model.VoyageRegistration) (map[string]any, error) {
	out := map[string]any{}
	err := c.do(ctx, http.MethodPost, "/voyage/register", nil, reg, &out)
	return out, err
}

func (c *Client) UpdateVesselPosition(ctx context.Context, upd model.PositionUpdate) (map[string]any, error) {
	out := map[string]any{}
	err := c.do(ctx, http.MethodPut, "/vessel/position", nil, upd, &out)
	return out, err
}

func (c *Client) VesselDeviations(ctx context.Context, mmsi string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, http.MethodGet, "/vessel/"+url.PathEscape(mmsi)+"/deviations", nil, nil, &out)
	return out, err
}

func (c *Client) FleetStatus(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, http.MethodGet, "/fleet/status", nil, nil, &out)
	return out, err
}

func (c *Client) ForecastCongestion(ctx context.Context, req model.CongestionForecastRequest) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, http.MethodPost, "/forecast/congestion", nil, req, &out)
	return out, err
}

func (c *Client) PortForecast(ctx context.Context, portID string, days int) (json.RawMessage, error) {
	if days <= 0 {
		days = 7
	}
	var out json.RawMessage
	q := url.Values{"days": {strconv.Itoa(days)}}
	err := c.do(ctx, http.MethodGet, "/port/"+url.PathEscape(portID)+"/forecast", q, nil, &out)
	return out, err
}

// Health never fails; an unreachable service reports status "error".
func (c *Client) Health(ctx context.Context) map[string]any {
	out := map[string]any{}
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out); err != nil {
		return map[string]any{"status": "error", "message": "API unavailable"}
	}
	return out
}
