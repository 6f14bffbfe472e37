package model

import (
	"fmt"
	"time"
)

// Timestamp marshals as RFC 3339 UTC, matching every wire payload in
// spec.md section 6 ("all timestamps RFC 3339 UTC").
type Timestamp time.Time

// Now returns the current UTC time as a Timestamp. It is a plain function,
// not a replaceable variable; Hub.Status takes its clock as a parameter
// instead, so a caller there can pass a fixed one.
func Now() Timestamp { return Timestamp(time.Now().UTC()) }

// MarshalJSON renders the timestamp as RFC 3339.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).UTC().Format(time.RFC3339Nano) + `"`), nil
}

// UnmarshalJSON parses an RFC 3339 timestamp.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("model: invalid RFC3339 timestamp %q: %w", s, err)
		}
	}
	*t = Timestamp(parsed)
	return nil
}

// Time unwraps back to a stdlib time.Time.
func (t Timestamp) Time() time.Time { return time.Time(t) }

// HubInfo is the retained hub identity payload (iot/hubs/<hub_id>/info).
type HubInfo struct {
	HubID             string   `json:"hub_id"`
	Location          Location `json:"location"`
	MaxGridCapacityKW float64  `json:"max_grid_capacity_kw"`
	IPAddress         string   `json:"ip_address"`
	FirmwareVersion   string   `json:"firmware_version"`
}

// HubStatus is the hub's non-retained status payload.
type HubStatus struct {
	State     string    `json:"state"`
	CPUTemp   float64   `json:"cpu_temp"`
	Timestamp Timestamp `json:"timestamp"`
}

// NodeInfo is the retained per-node identity payload.
type NodeInfo struct {
	NodeID     string  `json:"node_id"`
	HubID      string  `json:"hub_id"`
	Name       string  `json:"name,omitempty"`
	MaxPowerKW float64 `json:"max_power_kw"`
}

// NodeStatus is the node's non-retained status payload, published only
// when (state, error_code) changes (spec.md section 4.1).
type NodeStatus struct {
	State     string    `json:"state"`
	ErrorCode int       `json:"error_code"`
	Timestamp Timestamp `json:"timestamp"`
}

// NodeTelemetry is the node's periodic telemetry payload (QoS 0, not retained).
type NodeTelemetry struct {
	Voltage            float64   `json:"voltage"`
	Current            float64   `json:"current"`
	PowerKW            float64   `json:"power_kw"`
	PowerLimitKW       float64   `json:"power_limit_kw"`
	IsOccupied         bool      `json:"is_occupied"`
	ConnectedVehicleID string    `json:"connected_vehicle_id,omitempty"`
	CurrentVehicleSoC  *int      `json:"current_vehicle_soc,omitempty"`
	Timestamp          Timestamp `json:"timestamp"`
}

// DLMNotification is emitted when a node's power_limit_kw changes by more
// than the epsilon in spec.md section 4.5.
type DLMNotification struct {
	TriggerReason  string    `json:"trigger_reason"`
	OriginalLimit  float64   `json:"original_limit"`
	NewLimit       float64   `json:"new_limit"`
	AffectedNodeID string    `json:"affected_node_id"`
	TotalGridLoad  float64   `json:"total_grid_load"`
	Timestamp      Timestamp `json:"timestamp"`
}

// VehicleRequest is a vehicle's charging-session request, consumed from
// iot/hubs/<hub_id>/requests.
type VehicleRequest struct {
	VehicleID  string    `json:"vehicle_id"`
	NodeID     string    `json:"node_id"`
	SoCPercent int       `json:"soc_percent"`
	Timestamp  Timestamp `json:"timestamp"`
}

// Validate checks a VehicleRequest against its wire bounds.
func (r VehicleRequest) Validate() error {
	if r.VehicleID == "" || len(r.VehicleID) > 50 {
		return fmt.Errorf("model: vehicle_id must be 1-50 chars")
	}
	if r.NodeID == "" || len(r.NodeID) > 50 {
		return fmt.Errorf("model: node_id must be 1-50 chars")
	}
	if r.SoCPercent < 0 || r.SoCPercent > 100 {
		return fmt.Errorf("model: soc_percent %d out of range [0,100]", r.SoCPercent)
	}
	return nil
}

// VehicleTelemetry is consumed from iot/vehicles/<vehicle_id>/telemetry.
type VehicleTelemetry struct {
	GeoLocation  Location  `json:"geo_location"`
	BatteryLevel int       `json:"battery_level"`
	SpeedKmh     *float64  `json:"speed_kmh,omitempty"`
	EngineTempC  *float64  `json:"engine_temp_c,omitempty"`
	IsCharging   bool      `json:"is_charging"`
	Timestamp    Timestamp `json:"timestamp"`
}

// Validate checks a VehicleTelemetry payload against its wire bounds.
func (v VehicleTelemetry) Validate() error {
	if v.BatteryLevel < 0 || v.BatteryLevel > 100 {
		return fmt.Errorf("model: battery_level %d out of range [0,100]", v.BatteryLevel)
	}
	if v.SpeedKmh != nil && (*v.SpeedKmh < 0 || *v.SpeedKmh > 300) {
		return fmt.Errorf("model: speed_kmh %.1f out of range [0,300]", *v.SpeedKmh)
	}
	if v.EngineTempC != nil && (*v.EngineTempC < -40 || *v.EngineTempC > 150) {
		return fmt.Errorf("model: engine_temp_c %.1f out of range [-40,150]", *v.EngineTempC)
	}
	return nil
}
