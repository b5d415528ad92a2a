// Package decode implements the frame decoder (C4): CRC repair dispatch,
// AP-coded address recovery against the seen-address cache, and ME
// type/subtype classification of DF17/18 extended squitter payloads.
package decode

import (
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
)

// ErrBitErrors is returned when a candidate's CRC could not be validated or
// repaired, or whose recovered address fails acceptance.
var ErrBitErrors = errors.New("decode: unrepairable bit errors")

// SeenMap is the shared "recently seen" ICAO address cache: CRC-valid
// DF11/17/18 frames populate it; AP-coded frames and relaxed DF11 frames
// consult it.
type SeenMap struct {
	c *cache.Cache
}

const seenTTL = 60 * time.Second

// NewSeenMap builds a seen-address cache with the standard 60s TTL and a
// 10s cleanup sweep.
func NewSeenMap() *SeenMap {
	return &SeenMap{c: cache.New(seenTTL, 10*time.Second)}
}

// Mark records addr as seen at the current wall-clock time.
func (s *SeenMap) Mark(addr uint32) {
	s.c.Set(addrKey(addr), struct{}{}, cache.DefaultExpiration)
}

// Recent reports whether addr was marked within the TTL window.
func (s *SeenMap) Recent(addr uint32) bool {
	_, ok := s.c.Get(addrKey(addr))
	return ok
}

func addrKey(addr uint32) string {
	// go-cache keys on string; a fixed-width hex key avoids decimal/locale
	// formatting surprises and sorts predictably in debug dumps.
	const hex = "0123456789abcdef"
	buf := [6]byte{}
	for i := 5; i >= 0; i-- {
		buf[i] = hex[addr&0xf]
		addr >>= 4
	}
	return string(buf[:])
}

// DfHeader1 carries the fields shared by every DF17/18 extended squitter
// variant.
type DfHeader1 struct {
	Capability byte
	Addr       uint32
	MeType     byte
	MeSub      byte
	FS         byte
	Identity   uint32
}

// MessageCommon carries the fields shared by every decoded message,
// regardless of variant: raw bytes, provenance from the beamformer, and
// whether the CRC validated (directly or via repair/AP acceptance).
type MessageCommon struct {
	Msg        []byte
	Samples    []int16
	SampleNdx  uint64
	SNR        float32
	Thetas     []float64
	Amplitudes []float64
	CRCOk      bool
	PipeNdx    int
}

// AircraftIdentityAndCategory is DF17/18 ME type 1-4.
type AircraftIdentityAndCategory struct {
	Hdr          DfHeader1
	AircraftType byte
	Flight       string
}

// SurfacePosition is DF17/18 ME type 5-8.
type SurfacePosition struct {
	Hdr         DfHeader1
	Movement    byte
	GroundTrack byte
	FFlag       bool
	TFlag       bool
	RawLat      uint32
	RawLon      uint32
}

// AirbornePosition is DF17/18 ME type 9-18.
type AirbornePosition struct {
	Hdr      DfHeader1
	FFlag    bool
	TFlag    bool
	Altitude float32
	RawLat   uint32
	RawLon   uint32
}

// AirborneVelocityGroundspeed is DF17/18 ME type 19, mesub 1-2.
type AirborneVelocityGroundspeed struct {
	Hdr            DfHeader1
	EWDir          byte
	EWVelocity     uint16
	NSDir          byte
	NSVelocity     uint16
	VertRateSource byte
	VertRateSign   byte
	VertRate       uint16
	Velocity       float32
	Heading        float32
}

// AirborneVelocityAirspeed is DF17/18 ME type 19, mesub 3-4.
type AirborneVelocityAirspeed struct {
	Hdr     DfHeader1
	Heading float32
}

// Other covers any DF or ME subtype this decoder doesn't classify further.
type Other struct{}

// MessageSpecific is one of the typed variants above.
type MessageSpecific interface {
	isMessageSpecific()
}

func (AircraftIdentityAndCategory) isMessageSpecific() {}
func (SurfacePosition) isMessageSpecific()             {}
func (AirbornePosition) isMessageSpecific()            {}
func (AirborneVelocityGroundspeed) isMessageSpecific() {}
func (AirborneVelocityAirspeed) isMessageSpecific()    {}
func (Other) isMessageSpecific()                       {}

// Message is a fully decoded candidate.
type Message struct {
	Common   MessageCommon
	Specific MessageSpecific
}
