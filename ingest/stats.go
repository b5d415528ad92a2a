package ingest

import "github.com/km4kfl/beamrecv/modes/decode"

// VariantCounts tallies decoded messages by ME variant, for the status
// dump's combined-beam counters.
type VariantCounts struct {
	Identity   uint64
	Surface    uint64
	Airborne   uint64
	VelocityGS uint64
	VelocityAS uint64
	Other      uint64
	Total      uint64
}

func (v *VariantCounts) add(specific decode.MessageSpecific) {
	v.Total++
	switch specific.(type) {
	case decode.AircraftIdentityAndCategory:
		v.Identity++
	case decode.SurfacePosition:
		v.Surface++
	case decode.AirbornePosition:
		v.Airborne++
	case decode.AirborneVelocityGroundspeed:
		v.VelocityGS++
	case decode.AirborneVelocityAirspeed:
		v.VelocityAS++
	default:
		v.Other++
	}
}

// DFCounts tallies raw downlink-format hits for the per-antenna diagnostic
// pass: a cheap sanity check that beamforming is actually buying SNR over
// a single element (§4 supplemented features).
type DFCounts struct {
	DF11  uint64
	DF17  uint64
	DF18  uint64
	Other uint64
	Total uint64
}

func (d *DFCounts) add(dfType byte) {
	d.Total++
	switch dfType {
	case 11:
		d.DF11++
	case 17:
		d.DF17++
	case 18:
		d.DF18++
	default:
		d.Other++
	}
}

// Stats is the orchestrator's running counters, read by the status TUI.
type Stats struct {
	Combined          VariantCounts
	PerStream         []DFCounts
	BuffersProcessed  uint64
	LastBufferTooSlow bool
	LastBufferSeconds float64
}
