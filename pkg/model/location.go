// Package model defines the Edge Hub Controller's core data types: the
// hub and node state, the wire payloads published to and consumed from the
// pub/sub fabric, and the internal DLM records. Types here carry validation
// on construction rather than relying on a schema library — there is no
// schema-validation package anywhere in the reference corpus to reach for.
package model

import "fmt"

// Location is a hub's physical position, immutable after construction.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// NewLocation validates and constructs a Location.
func NewLocation(lat, lon, alt float64) (Location, error) {
	loc := Location{Latitude: lat, Longitude: lon, Altitude: alt}
	if err := loc.Validate(); err != nil {
		return Location{}, err
	}
	return loc, nil
}

// Validate checks the location is within the ranges defined in the wire schema.
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("model: latitude %.6f out of range [-90,90]", l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("model: longitude %.6f out of range [-180,180]", l.Longitude)
	}
	if l.Altitude < -500 || l.Altitude > 10000 {
		return fmt.Errorf("model: altitude %.2f out of range [-500,10000]", l.Altitude)
	}
	return nil
}
