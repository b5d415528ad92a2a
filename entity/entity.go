// Package entity tracks aircraft (and other transponder-equipped
// entities) across decoded messages: identity/position/velocity fields,
// CPR pairing, and the rolling SNR-weighted steering vector fed back to
// the pipe manager.
package entity

import (
	"sync"

	"github.com/km4kfl/beamrecv/modes/cpr"
	"github.com/km4kfl/beamrecv/modes/decode"
	"github.com/km4kfl/beamrecv/pipe"
)

// DefaultSNRScaler is the default external gain applied to SNR weights in
// the rolling steering-vector average.
const DefaultSNRScaler = 40.0

// cprPosition is one raw CPR lat/lon/sample-index observation.
type cprPosition struct {
	rawLat, rawLon uint32
	sampleIndex    uint64
	valid          bool
}

// Entity is one tracked transponder address.
type Entity struct {
	Addr uint32

	OddCPR, EvenCPR cprPosition

	Lat, Lon      float64
	HasPosition   bool
	Alt           float32
	HasAlt        bool
	Flight        string
	HasFlight     bool
	AircraftType  byte
	HasType       bool

	LastUpdate   uint64
	MessageCount uint64
	Inbeam       uint64

	thetas [][]float64
	amps   [][]float64
	snrs   []float32
}

func (e *Entity) pushThetaCapAvg(snr float32, thetas, amps []float64, depth int, snrScaler float64) ([]float64, []float64) {
	e.thetas = append([][]float64{thetas}, e.thetas...)
	e.amps = append([][]float64{amps}, e.amps...)
	e.snrs = append([]float32{snr}, e.snrs...)

	if len(e.thetas) > depth {
		e.thetas = e.thetas[:depth]
		e.amps = e.amps[:depth]
		e.snrs = e.snrs[:depth]
	}

	return e.thetaAvg(snrScaler)
}

// thetaAvg returns the SNR-weighted average steering vector over the
// entity's rolling history: theta_avg[k] = sum(theta_i[k]*snr_i*scaler) /
// sum(snr_i*scaler), and likewise for amplitudes.
func (e *Entity) thetaAvg(snrScaler float64) ([]float64, []float64) {
	sum := make([]float64, len(e.thetas[0]))
	ampSum := make([]float64, len(e.amps[0]))
	var total float64

	for y := range e.thetas {
		w := float64(e.snrs[y]) * snrScaler
		for x := range sum {
			sum[x] += e.thetas[y][x] * w
		}
		total += w
	}
	for y := range e.amps {
		w := float64(e.snrs[y]) * snrScaler
		for x := range ampSum {
			ampSum[x] += e.amps[y][x] * w
		}
	}

	if total != 0 {
		for x := range sum {
			sum[x] /= total
		}
		for x := range ampSum {
			ampSum[x] /= total
		}
	}
	return sum, ampSum
}

// Table is the mutex-guarded set of tracked entities.
type Table struct {
	mu         sync.Mutex
	entities   map[uint32]*Entity
	pipes      *pipe.Manager
	snrScaler  float64
	avgDepth   int
	sampleRate uint64
}

// NewTable builds an empty entity table wired to the given pipe manager.
func NewTable(pipes *pipe.Manager, snrScaler float64, avgDepth int, sampleRateHz uint64) *Table {
	return &Table{
		entities:   make(map[uint32]*Entity),
		pipes:      pipes,
		snrScaler:  snrScaler,
		avgDepth:   avgDepth,
		sampleRate: sampleRateHz,
	}
}

func (t *Table) entityFor(addr uint32) *Entity {
	e, ok := t.entities[addr]
	if !ok {
		e = &Entity{Addr: addr}
		t.entities[addr] = e
	}
	return e
}

func (t *Table) checkInBeam(e *Entity, pipeNdx int) {
	if slot, ok := t.pipes.SlotForAddress(e.Addr); ok && slot == pipeNdx {
		e.Inbeam++
	}
}

func (t *Table) pushWeightsAndRebind(e *Entity, common decode.MessageCommon) {
	thetas, amps := e.pushThetaCapAvg(common.SNR, common.Thetas, common.Amplitudes, t.avgDepth, t.snrScaler)
	t.pipes.AllocateForAddress(e.Addr, thetas, amps)
}

// Apply processes one decoded message against the entity table: bumps
// message_count/inbeam, updates variant-specific fields, rebinds the pipe
// slot to the rolling steering-vector average, and resolves CPR pairs into
// a lat/lon fix when both halves are fresh.
func (t *Table) Apply(sampleIndex uint64, msg decode.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var addr uint32
	switch s := msg.Specific.(type) {
	case decode.AircraftIdentityAndCategory:
		addr = s.Hdr.Addr
	case decode.SurfacePosition:
		addr = s.Hdr.Addr
	case decode.AirbornePosition:
		addr = s.Hdr.Addr
	case decode.AirborneVelocityGroundspeed:
		addr = s.Hdr.Addr
	case decode.AirborneVelocityAirspeed:
		addr = s.Hdr.Addr
	default:
		return
	}

	e := t.entityFor(addr)
	e.MessageCount++
	t.checkInBeam(e, msg.Common.PipeNdx)

	switch s := msg.Specific.(type) {
	case decode.AircraftIdentityAndCategory:
		e.LastUpdate = sampleIndex
		e.Flight = s.Flight
		e.HasFlight = true
		e.AircraftType = s.AircraftType
		e.HasType = true
		t.pushWeightsAndRebind(e, msg.Common)

	case decode.AirbornePosition:
		e.LastUpdate = sampleIndex
		e.Alt = s.Altitude
		e.HasAlt = true
		t.pushWeightsAndRebind(e, msg.Common)

		pos := cprPosition{rawLat: s.RawLat, rawLon: s.RawLon, sampleIndex: sampleIndex, valid: true}
		if s.FFlag {
			e.OddCPR = pos
		} else {
			e.EvenCPR = pos
		}
		t.resolvePosition(e)

	case decode.AirborneVelocityGroundspeed, decode.AirborneVelocityAirspeed:
		t.pushWeightsAndRebind(e, msg.Common)

	case decode.SurfacePosition:
		e.LastUpdate = sampleIndex
		t.pushWeightsAndRebind(e, msg.Common)
	}
}

func (t *Table) resolvePosition(e *Entity) {
	if !e.EvenCPR.valid || !e.OddCPR.valid {
		return
	}

	delta := e.EvenCPR.sampleIndex - e.OddCPR.sampleIndex
	if e.OddCPR.sampleIndex > e.EvenCPR.sampleIndex {
		delta = e.OddCPR.sampleIndex - e.EvenCPR.sampleIndex
	}
	if delta > 10*t.sampleRate {
		return
	}

	even := cpr.Frame{RawLat: e.EvenCPR.rawLat, RawLon: e.EvenCPR.rawLon, SampleIndex: e.EvenCPR.sampleIndex}
	odd := cpr.Frame{RawLat: e.OddCPR.rawLat, RawLon: e.OddCPR.rawLon, SampleIndex: e.OddCPR.sampleIndex}

	lat, lon, ok := cpr.Decode(even, odd)
	if !ok {
		return
	}
	e.Lat, e.Lon, e.HasPosition = lat, lon, true
}

// EvictStale removes every entity whose last update is more than 60s
// behind nowSampleIndex (by the configured sample rate), releasing its
// pipe slot in the process. Driven by the orchestrator's heartbeat.
func (t *Table) EvictStale(nowSampleIndex uint64) []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var evicted []uint32
	for addr, e := range t.entities {
		if nowSampleIndex < e.LastUpdate {
			continue
		}
		if nowSampleIndex-e.LastUpdate > 60*t.sampleRate {
			delete(t.entities, addr)
			t.pipes.ReleaseAddress(addr)
			evicted = append(evicted, addr)
		}
	}
	return evicted
}

// Snapshot returns a point-in-time copy of every tracked entity, for
// status-dump rendering.
func (t *Table) Snapshot() []Entity {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entity, 0, len(t.entities))
	for _, e := range t.entities {
		out = append(out, *e)
	}
	return out
}
