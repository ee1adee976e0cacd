package model

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Form field names accepted by BuildRequest.
const (
	FieldVesselName      = "vessel_name"
	FieldMMSI            = "mmsi"
	FieldIMO             = "imo"
	FieldCallSign        = "call_sign"
	FieldLength          = "length_m"
	FieldBeam            = "beam_m"
	FieldDraught         = "draught_m"
	FieldDepth           = "depth_m"
	FieldTypeCode        = "type_code"
	FieldLatitude        = "latitude"
	FieldLongitude       = "longitude"
	FieldSOG             = "sog_knots"
	FieldCOG             = "cog_degrees"
	FieldHeading         = "heading_degrees"
	FieldNavStatus       = "nav_status"
	FieldDestinationPort = "destination_port"
	FieldStartPort       = "start_port"
	FieldEndPort         = "end_port"
	FieldWeightTime      = "weight_time"
	FieldWeightCost      = "weight_cost"
	FieldWeightRisk      = "weight_risk"
	FieldFuelPrice       = "fuel_price"
	FieldAvoidPiracy     = "avoid_piracy_zones"
	FieldAvoidWeather    = "avoid_weather_risks"
)

const (
	ReasonRequired    = "required"
	ReasonNotANumber  = "not a number"
	ReasonNotABoolean = "not a boolean"
	ReasonNotAWhole   = "must be a whole number"
)

// decimal is the only number syntax accepted from forms: optional sign,
// digits with an optional fraction, optional exponent. Hex, binary, octal,
// underscores, Inf and NaN are rejected even though strconv parses them.
var decimal = regexp.MustCompile(`^[+-]?(?:[0-9]+(?:\.[0-9]*)?|\.[0-9]+)(?:[eE][+-]?[0-9]+)?$`)

// ValidationError names the first form field that failed to convert.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// BuildRequest converts raw form fields into an OptimizationRequest.
// Fields are checked in a fixed order and the first failure is returned as
// a *ValidationError. Port ids are checked for presence only; catalog
// membership is left to the caller.
func BuildRequest(fields map[string]string) (OptimizationRequest, error) {
	p := formParser{fields: fields}
	var req OptimizationRequest
	v := &req.Vessel

	v.Name = p.text(FieldVesselName)
	v.MMSI = p.text(FieldMMSI)
	v.IMO = p.text(FieldIMO)
	v.CallSign = p.text(FieldCallSign)

	v.Dimensions.LengthM = p.positive(FieldLength)
	v.Dimensions.BeamM = p.positive(FieldBeam)
	v.Dimensions.DraughtM = p.positive(FieldDraught)
	v.Dimensions.DepthM = p.positive(FieldDepth)
	v.TypeCode = p.nonNegativeInt(FieldTypeCode)

	v.Latitude = p.between(FieldLatitude, -90, 90)
	v.Longitude = p.between(FieldLongitude, -180, 180)
	v.SOGKnots = p.nonNegative(FieldSOG)
	v.COGDegrees = p.bearing(FieldCOG)
	v.HeadingDegrees = p.bearing(FieldHeading)
	v.NavStatus = p.nonNegativeInt(FieldNavStatus)
	v.DestinationPort = p.optionalText(FieldDestinationPort)

	req.StartPortID = p.text(FieldStartPort)
	req.EndPortID = p.text(FieldEndPort)

	req.WeightTime = p.optionalWeight(FieldWeightTime)
	req.WeightCost = p.optionalWeight(FieldWeightCost)
	req.WeightRisk = p.optionalWeight(FieldWeightRisk)
	req.FuelPricePerTon = p.positive(FieldFuelPrice)

	req.AvoidPiracyZones = p.optionalBool(FieldAvoidPiracy)
	req.AvoidWeatherRisks = p.optionalBool(FieldAvoidWeather)

	if p.err != nil {
		return OptimizationRequest{}, p.err
	}
	return req, nil
}

// FieldTimestamp is the observation time of a position report.
const FieldTimestamp = "timestamp"

// BuildPositionUpdate converts a position report with the same rules as
// BuildRequest. An empty timestamp is left for the caller to fill.
func BuildPositionUpdate(fields map[string]string) (PositionUpdate, error) {
	p := formParser{fields: fields}
	upd := PositionUpdate{
		MMSI:      p.text(FieldMMSI),
		Latitude:  p.between(FieldLatitude, -90, 90),
		Longitude: p.between(FieldLongitude, -180, 180),
		Timestamp: p.optionalText(FieldTimestamp),
	}
	if p.err != nil {
		return PositionUpdate{}, p.err
	}
	return upd, nil
}

// formParser records the first failure; later calls are no-ops.
type formParser struct {
	fields map[string]string
	err    *ValidationError
}

func (p *formParser) raw(field string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	s, ok := p.fields[field]
	return strings.TrimSpace(s), ok
}

func (p *formParser) fail(field, reason string) {
	if p.err == nil {
		p.err = invalid(field, reason)
	}
}

func (p *formParser) text(field string) string {
	s, _ := p.raw(field)
	if p.err == nil && s == "" {
		p.fail(field, ReasonRequired)
	}
	return s
}

func (p *formParser) optionalText(field string) string {
	s, _ := p.raw(field)
	return s
}

func (p *formParser) number(field string) (float64, bool) {
	s := p.text(field)
	if p.err != nil {
		return 0, false
	}
	if !decimal.MatchString(s) {
		p.fail(field, ReasonNotANumber)
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		p.fail(field, ReasonNotANumber)
		return 0, false
	}
	return f, true
}

func (p *formParser) positive(field string) float64 {
	f, ok := p.number(field)
	if ok && f <= 0 {
		p.fail(field, "must be greater than 0")
	}
	return f
}

func (p *formParser) nonNegative(field string) float64 {
	f, ok := p.number(field)
	if ok && f < 0 {
		p.fail(field, "must be >= 0")
	}
	return f
}

func (p *formParser) between(field string, lo, hi float64) float64 {
	f, ok := p.number(field)
	if ok && (f < lo || f > hi) {
		p.fail(field, fmt.Sprintf("must be within [%g, %g]", lo, hi))
	}
	return f
}

func (p *formParser) bearing(field string) float64 {
	f, ok := p.number(field)
	if ok && (f < 0 || f >= 360) {
		p.fail(field, "must be within [0, 360)")
	}
	return f
}

// nonNegativeInt accepts any decimal with an integral value, so "70",
// "70.0" and "7e1" are the same code.
func (p *formParser) nonNegativeInt(field string) int {
	f, ok := p.number(field)
	if !ok {
		return 0
	}
	if f != math.Trunc(f) {
		p.fail(field, ReasonNotAWhole)
		return 0
	}
	if f > math.MaxInt32 {
		p.fail(field, "out of range")
		return 0
	}
	if f < 0 {
		p.fail(field, "must be >= 0")
		return 0
	}
	return int(f)
}

func (p *formParser) optionalWeight(field string) *float64 {
	if _, ok := p.raw(field); !ok {
		return nil
	}
	f, ok := p.number(field)
	if !ok {
		return nil
	}
	if f < 0 {
		p.fail(field, "must be >= 0")
		return nil
	}
	return &f
}

func (p *formParser) optionalBool(field string) *bool {
	s, ok := p.raw(field)
	if !ok {
		return nil
	}
	if s == "" {
		p.fail(field, ReasonRequired)
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(field, ReasonNotABoolean)
		return nil
	}
	return &b
}
