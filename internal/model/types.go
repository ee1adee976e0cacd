// Package model holds the wire types shared by the orchestrator, the
// transport client and the dashboard.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type Dimensions struct {
	LengthM  float64 `json:"length_m"`
	BeamM    float64 `json:"beam_m"`
	DraughtM float64 `json:"draught_m"`
	DepthM   float64 `json:"depth_m"`
}

// VesselProfile is the vessel block of an optimization request.
type VesselProfile struct {
	MMSI            string     `json:"mmsi"`
	IMO             string     `json:"imo"`
	Name            string     `json:"name"`
	CallSign        string     `json:"call_sign"`
	Dimensions      Dimensions `json:"dimensions"`
	TypeCode        int        `json:"type_code"`
	Latitude        float64    `json:"latitude"`
	Longitude       float64    `json:"longitude"`
	SOGKnots        float64    `json:"sog_knots"`
	COGDegrees      float64    `json:"cog_degrees"`
	HeadingDegrees  float64    `json:"heading_degrees"`
	NavStatus       int        `json:"nav_status"`
	DestinationPort string     `json:"destination_port,omitempty"`
}

// Waypoint is a catalog entry, typically a port.
type Waypoint struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	PortType  string  `json:"port_type"`
	Capacity  int     `json:"capacity,omitempty"`
}

type OptimizationRequest struct {
	Vessel            VesselProfile `json:"vessel"`
	StartPortID       string        `json:"start_port_id"`
	EndPortID         string        `json:"end_port_id"`
	WeightTime        *float64      `json:"weight_time,omitempty"`
	WeightCost        *float64      `json:"weight_cost,omitempty"`
	WeightRisk        *float64      `json:"weight_risk,omitempty"`
	FuelPricePerTon   float64       `json:"fuel_price_per_ton"`
	AvoidPiracyZones  *bool         `json:"avoid_piracy_zones,omitempty"`
	AvoidWeatherRisks *bool         `json:"avoid_weather_risks,omitempty"`
}

// RoutePoint is one element of the ordered path of an optimized route.
type RoutePoint struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

type RouteMetrics struct {
	DistanceNM float64 `json:"distance_nm"`
	TimeHours  float64 `json:"time_hours"`
	FuelTons   float64 `json:"fuel_tons"`
	CostUSD    float64 `json:"cost_usd"`
	RiskScore  float64 `json:"risk_score"`
}

// Blockage flags a chokepoint on the computed route. An empty list means
// no known risk.
type Blockage struct {
	Chokepoint     string `json:"chokepoint"`
	RiskLevel      string `json:"risk_level"`
	Recommendation string `json:"recommendation"`
}

type OptimizedRoute struct {
	Waypoints   []RoutePoint `json:"waypoints"`
	Metrics     RouteMetrics `json:"metrics"`
	Blockages   []Blockage   `json:"blockages"`
	GeneratedAt string       `json:"generated_at"`
}

// GeneratedTime parses GeneratedAt. The service emits ISO-8601 without a
// zone, so both forms are accepted.
func (r OptimizedRoute) GeneratedTime() (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, r.GeneratedAt); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// APIError is the single normalized failure shape of the transport client.
type APIError struct {
	Message string          `json:"message"`
	Status  int             `json:"status"`
	Details json.RawMessage `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Unauthorized reports whether the error came from a 401 response.
func (e *APIError) Unauthorized() bool { return e.Status == 401 }

// Secondary endpoints of the optimization service.

type Alternative struct {
	ID       int                `json:"id"`
	Strategy string             `json:"strategy"`
	Metrics  map[string]float64 `json:"metrics"`
}

type VoyageRegistration struct {
	Vessel    VesselProfile `json:"vessel"`
	StartPort string        `json:"start_port"`
	EndPort   string        `json:"end_port"`
}

type PositionUpdate struct {
	MMSI      string  `json:"mmsi"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp string  `json:"timestamp"`
}

type CongestionForecastRequest struct {
	PortID      string `json:"port_id"`
	ArrivalDate string `json:"arrival_date"`
	VesselType  string `json:"vessel_type,omitempty"`
}
