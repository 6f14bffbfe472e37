package main

import (
	"fmt"

	"github.com/enbility/zeroconf/v3"

	"github.com/gridwatt/hubctl/internal/config"
)

// startLANAdvertisement advertises the hub as `_edgehub._tcp` over mDNS
// (SPEC_FULL.md's supplemented LAN discovery feature), carrying hub_id and
// fw in TXT records for a local dashboard's auto-discovery. The retained
// HubInfo message over the broker remains the canonical directory; this is
// a purely local, additive convenience, grounded on the teacher's
// pkg/discovery/mdns.go zeroconf.Register usage.
func startLANAdvertisement(cfg *config.Config) (*lanAdvertiser, error) {
	server, err := zeroconf.Register(
		cfg.HubID,
		"_edgehub._tcp",
		"local.",
		cfg.Broker.Port,
		[]string{
			fmt.Sprintf("hub_id=%s", cfg.HubID),
			fmt.Sprintf("fw=%s", cfg.FirmwareVersion),
		},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("registering mdns service: %w", err)
	}
	return &lanAdvertiser{stopFn: server.Shutdown}, nil
}
