package model

import (
	"errors"
	"testing"
)

func validFields() map[string]string {
	return map[string]string{
		FieldVesselName: "Maritime Explorer",
		FieldMMSI:       "636016829",
		FieldIMO:        "9123456",
		FieldCallSign:   "CALL1",
		FieldLength:     "190",
		FieldBeam:       "32",
		FieldDraught:    "11",
		FieldDepth:      "18",
		FieldTypeCode:   "70",
		FieldLatitude:   "1.3521",
		FieldLongitude:  "103.8198",
		FieldSOG:        "15",
		FieldCOG:        "90",
		FieldHeading:    "88",
		FieldNavStatus:  "0",
		FieldStartPort:  "wp-1",
		FieldEndPort:    "wp-2",
		FieldFuelPrice:  "500",
		FieldWeightTime: "1",
		FieldWeightCost: "1",
		FieldWeightRisk: "1",
	}
}

func TestBuildRequestParsesExactValues(t *testing.T) {
	req, err := BuildRequest(validFields())
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	v := req.Vessel
	if v.Name != "Maritime Explorer" || v.MMSI != "636016829" || v.IMO != "9123456" || v.CallSign != "CALL1" {
		t.Fatalf("identity mismatch: %+v", v)
	}
	if v.Dimensions != (Dimensions{LengthM: 190, BeamM: 32, DraughtM: 11, DepthM: 18}) {
		t.Fatalf("dimensions: %+v", v.Dimensions)
	}
	if v.TypeCode != 70 || v.NavStatus != 0 {
		t.Fatalf("enums: type=%d nav=%d", v.TypeCode, v.NavStatus)
	}
	if v.Latitude != 1.3521 || v.Longitude != 103.8198 || v.SOGKnots != 15 || v.COGDegrees != 90 || v.HeadingDegrees != 88 {
		t.Fatalf("kinematics: %+v", v)
	}
	if req.StartPortID != "wp-1" || req.EndPortID != "wp-2" || req.FuelPricePerTon != 500 {
		t.Fatalf("route: %+v", req)
	}
	if req.WeightTime == nil || *req.WeightTime != 1 || req.WeightCost == nil || *req.WeightCost != 1 || req.WeightRisk == nil || *req.WeightRisk != 1 {
		t.Fatalf("weights: %v %v %v", req.WeightTime, req.WeightCost, req.WeightRisk)
	}
	if req.AvoidPiracyZones != nil || req.AvoidWeatherRisks != nil {
		t.Fatalf("avoidance flags should be omitted")
	}
}

func TestBuildRequestRejectsNonNumeric(t *testing.T) {
	numeric := []string{
		FieldLength, FieldBeam, FieldDraught, FieldDepth, FieldTypeCode,
		FieldLatitude, FieldLongitude, FieldSOG, FieldCOG, FieldHeading,
		FieldNavStatus, FieldFuelPrice, FieldWeightTime, FieldWeightCost, FieldWeightRisk,
	}
	for _, field := range numeric {
		for _, bad := range []string{"abc", "12abc", "NaN", "Inf", "1,5"} {
			f := validFields()
			f[field] = bad
			_, err := BuildRequest(f)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("%s=%q: want ValidationError, got %v", field, bad, err)
			}
			if ve.Field != field || ve.Reason != ReasonNotANumber {
				t.Fatalf("%s=%q: got %+v", field, bad, ve)
			}
		}
	}
}

func TestBuildRequestEmptyIsNotDefaulted(t *testing.T) {
	for _, field := range []string{FieldMMSI, FieldLength, FieldStartPort, FieldEndPort, FieldWeightRisk} {
		f := validFields()
		f[field] = "  "
		_, err := BuildRequest(f)
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != field || ve.Reason != ReasonRequired {
			t.Fatalf("%s: got %v", field, err)
		}
	}
}

func TestBuildRequestRanges(t *testing.T) {
	cases := []struct {
		field, value string
	}{
		{FieldLatitude, "90.01"},
		{FieldLatitude, "-91"},
		{FieldLongitude, "180.5"},
		{FieldSOG, "-1"},
		{FieldCOG, "360"},
		{FieldHeading, "-0.1"},
		{FieldLength, "0"},
		{FieldFuelPrice, "0"},
		{FieldWeightCost, "-0.5"},
		{FieldTypeCode, "-3"},
	}
	for _, tc := range cases {
		f := validFields()
		f[tc.field] = tc.value
		_, err := BuildRequest(f)
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != tc.field {
			t.Fatalf("%s=%s: got %v", tc.field, tc.value, err)
		}
	}
}

func TestBuildRequestNumberSyntax(t *testing.T) {
	accepted := map[string]float64{"70": 70, "+70": 70, "70.": 70, "70.0": 70, ".5e2": 50, "7E1": 70, " 70 ": 70}
	for in, want := range accepted {
		f := validFields()
		f[FieldLength] = in
		req, err := BuildRequest(f)
		if err != nil || req.Vessel.Dimensions.LengthM != want {
			t.Fatalf("length_m=%q: got %v, %v", in, req.Vessel.Dimensions.LengthM, err)
		}
	}
	for _, in := range []string{"0x1p4", "0x10", "0b101", "1_000", "Infinity", "+Inf", "1e400", ".", "e5", "1e"} {
		f := validFields()
		f[FieldLength] = in
		_, err := BuildRequest(f)
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != FieldLength || ve.Reason != ReasonNotANumber {
			t.Fatalf("length_m=%q: got %v", in, err)
		}
	}
}

func TestBuildRequestWholeNumbers(t *testing.T) {
	for in, want := range map[string]int{"70": 70, "70.0": 70, "7e1": 70, "0.0": 0} {
		f := validFields()
		f[FieldTypeCode] = in
		f[FieldNavStatus] = in
		req, err := BuildRequest(f)
		if err != nil || req.Vessel.TypeCode != want || req.Vessel.NavStatus != want {
			t.Fatalf("%q: got type=%d nav=%d err=%v", in, req.Vessel.TypeCode, req.Vessel.NavStatus, err)
		}
	}
	for in, reason := range map[string]string{"70.5": ReasonNotAWhole, "1e12": "out of range", "0x46": ReasonNotANumber} {
		f := validFields()
		f[FieldTypeCode] = in
		_, err := BuildRequest(f)
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != FieldTypeCode || ve.Reason != reason {
			t.Fatalf("type_code=%q: got %v", in, err)
		}
	}
}

func TestBuildPositionUpdate(t *testing.T) {
	upd, err := BuildPositionUpdate(map[string]string{
		FieldMMSI: "636016829", FieldLatitude: "1.5", FieldLongitude: "103.9", FieldTimestamp: "2024-05-01T10:00:00Z",
	})
	if err != nil {
		t.Fatalf("BuildPositionUpdate: %v", err)
	}
	if upd != (PositionUpdate{MMSI: "636016829", Latitude: 1.5, Longitude: 103.9, Timestamp: "2024-05-01T10:00:00Z"}) {
		t.Fatalf("update: %+v", upd)
	}
	_, err = BuildPositionUpdate(map[string]string{FieldMMSI: "636016829", FieldLatitude: "95", FieldLongitude: "0"})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != FieldLatitude {
		t.Fatalf("latitude range: got %v", err)
	}
}

func TestBuildRequestFailFastOrder(t *testing.T) {
	f := validFields()
	f[FieldLength] = "x"
	f[FieldLatitude] = "y"
	f[FieldFuelPrice] = "z"
	_, err := BuildRequest(f)
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != FieldLength {
		t.Fatalf("want first failing field %s, got %v", FieldLength, err)
	}
}

func TestBuildRequestWeightsPassThrough(t *testing.T) {
	f := validFields()
	f[FieldWeightTime] = "0"
	f[FieldWeightCost] = "0"
	f[FieldWeightRisk] = "0"
	req, err := BuildRequest(f)
	if err != nil {
		t.Fatalf("all-zero weights must pass: %v", err)
	}
	if *req.WeightTime != 0 || *req.WeightCost != 0 || *req.WeightRisk != 0 {
		t.Fatalf("weights changed: %+v", req)
	}

	delete(f, FieldWeightTime)
	delete(f, FieldWeightCost)
	delete(f, FieldWeightRisk)
	req, err = BuildRequest(f)
	if err != nil {
		t.Fatalf("absent weights must pass: %v", err)
	}
	if req.WeightTime != nil || req.WeightCost != nil || req.WeightRisk != nil {
		t.Fatalf("absent weights should stay nil")
	}
}

func TestBuildRequestSamePortAndFlags(t *testing.T) {
	f := validFields()
	f[FieldEndPort] = f[FieldStartPort]
	f[FieldAvoidPiracy] = "true"
	f[FieldAvoidWeather] = "false"
	req, err := BuildRequest(f)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if !*req.AvoidPiracyZones || *req.AvoidWeatherRisks {
		t.Fatalf("flags: %v %v", *req.AvoidPiracyZones, *req.AvoidWeatherRisks)
	}

	f[FieldAvoidWeather] = "maybe"
	_, err = BuildRequest(f)
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != FieldAvoidWeather || ve.Reason != ReasonNotABoolean {
		t.Fatalf("got %v", err)
	}
}

func TestGeneratedTime(t *testing.T) {
	r := OptimizedRoute{GeneratedAt: "2024-05-01T10:20:30.123456"}
	if _, ok := r.GeneratedTime(); !ok {
		t.Fatalf("naive ISO timestamp should parse")
	}
	r.GeneratedAt = "2024-05-01T10:20:30Z"
	if _, ok := r.GeneratedTime(); !ok {
		t.Fatalf("RFC3339 should parse")
	}
	r.GeneratedAt = "yesterday"
	if _, ok := r.GeneratedTime(); ok {
		t.Fatalf("garbage should not parse")
	}
}
