package decode

import (
	"math"

	"github.com/km4kfl/beamrecv/beamform"
	"github.com/km4kfl/beamrecv/modes/crc"
)

const aisCharset = "?ABCDEFGHIJKLMNOPQRSTUVWXYZ????? ???????????????0123456789??????"

func decodeAC12Field(msg []byte) float32 {
	if msg[5]&1 == 1 {
		n := (uint32(msg[5])>>1)<<4 | (uint32(msg[6]&0xf0) >> 4)
		return float32(n)*25.0 - 1000.0
	}
	return 0.0
}

func decodeIdentity(msg []byte) uint32 {
	a := (msg[3]&0x80)>>5 | (msg[2]&0x02)>>0 | (msg[2]&0x08)>>3
	b := (msg[3]&0x02)<<1 | (msg[3]&0x08)>>2 | (msg[3]&0x20)>>5
	c := (msg[2]&0x01)<<2 | (msg[2]&0x04)>>1 | (msg[2]&0x10)>>4
	d := (msg[3]&0x01)<<2 | (msg[3]&0x04)>>1 | (msg[3]&0x10)>>4
	return uint32(a)*1000 + uint32(b)*100 + uint32(c)*10 + uint32(d)
}

func bruteForceAddress(msg []byte) uint32 {
	c := crc.ComputeCRC(msg)
	n := len(msg)
	aux0 := uint32(msg[n-1]) ^ (c & 0xff)
	aux1 := uint32(msg[n-2]) ^ ((c >> 8) & 0xff)
	aux2 := uint32(msg[n-3]) ^ ((c >> 16) & 0xff)
	return aux0 | aux1<<8 | aux2<<16
}

func isAPCoded(dfType byte) bool {
	switch dfType {
	case 0, 4, 5, 16, 20, 21, 24:
		return true
	}
	return false
}

// Decode runs the CRC repair / AP-address acceptance / ME-dispatch pipeline
// against one beamformer candidate. table is the precomputed bit-error
// syndrome table from crc.BuildErrorTable; seen is the shared recently-seen
// address cache.
func Decode(cand beamform.Candidate, table map[uint32]uint16, seen *SeenMap) (Message, error) {
	msg := append([]byte(nil), cand.Bytes...)

	isLong := (msg[0]>>3)&0x10 == 0x10
	if !isLong && len(msg) > crc.ShortMsgBytes {
		msg = msg[:crc.ShortMsgBytes]
	}

	dfType := msg[0] >> 3
	syndrome := crc.Checksum(msg)
	crcOk := syndrome == 0
	nfixed := 0

	if !crcOk && (dfType == 11 || dfType == 17 || dfType == 18) {
		nfixed = crc.FixBitErrors(msg, table)
		if nfixed == 0 {
			return Message{}, ErrBitErrors
		}
		syndrome = crc.Checksum(msg)
		crcOk = syndrome == 0
	}

	addr := uint32(msg[1])<<16 | uint32(msg[2])<<8 | uint32(msg[3])

	switch {
	case dfType != 11 && dfType != 17 && dfType != 18:
		if isAPCoded(dfType) {
			addr = bruteForceAddress(msg)
			crcOk = seen.Recent(addr)
		} else {
			crcOk = false
		}
	default:
		if crcOk && nfixed == 0 {
			seen.Mark(addr)
		}
		if dfType == 11 && !crcOk && syndrome < 80 && seen.Recent(addr) {
			crcOk = true
		}
	}

	if !crcOk {
		return Message{}, ErrBitErrors
	}

	common := MessageCommon{
		Msg:        msg,
		Samples:    cand.Samples,
		SampleNdx:  cand.SampleIndex,
		SNR:        cand.SNR,
		Thetas:     cand.Thetas,
		Amplitudes: cand.Amplitudes,
		CRCOk:      crcOk,
		PipeNdx:    cand.PipeIndex,
	}

	if dfType != 17 && dfType != 18 {
		return Message{Common: common, Specific: Other{}}, nil
	}

	hdr := DfHeader1{
		Capability: msg[0] & 7,
		Addr:       addr,
		MeType:     msg[4] >> 3,
		MeSub:      msg[4] & 7,
		FS:         msg[0] & 7,
		Identity:   decodeIdentity(msg),
	}

	specific := classifyME(msg, hdr)
	return Message{Common: common, Specific: specific}, nil
}

func classifyME(msg []byte, hdr DfHeader1) MessageSpecific {
	metype, mesub := hdr.MeType, hdr.MeSub

	switch {
	case metype >= 1 && metype <= 4:
		f := [8]byte{
			msg[5] >> 2,
			(msg[5]&3)<<4 | msg[6]>>4,
			(msg[6]&15)<<2 | msg[7]>>6,
			msg[7] & 63,
			msg[8] >> 2,
			(msg[8]&3)<<4 | msg[9]>>4,
			(msg[9]&15)<<2 | msg[10]>>6,
			msg[10] & 63,
		}
		flight := make([]byte, 8)
		for i, v := range f {
			flight[i] = aisCharset[v]
		}
		return AircraftIdentityAndCategory{
			Hdr:          hdr,
			AircraftType: metype - 1,
			Flight:       string(flight),
		}

	case metype >= 5 && metype <= 8:
		return SurfacePosition{
			Hdr:         hdr,
			Movement:    (msg[4]&0x07)<<4 | msg[5]>>4,
			GroundTrack: (msg[5]&0x07)<<4 | msg[6]>>4,
			FFlag:       (msg[6]>>2)&1 == 1,
			TFlag:       (msg[6]>>3)&1 == 1,
			RawLat:      (uint32(msg[6]&3) << 15) | (uint32(msg[7]) << 7) | (uint32(msg[8]) >> 1),
			RawLon:      (uint32(msg[8]&1) << 16) | (uint32(msg[9]) << 8) | uint32(msg[10]),
		}

	case metype >= 9 && metype <= 18:
		return AirbornePosition{
			Hdr:      hdr,
			FFlag:    (msg[6]>>2)&1 == 1,
			TFlag:    (msg[6]>>3)&1 == 1,
			Altitude: decodeAC12Field(msg),
			RawLat:   (uint32(msg[6]&3) << 15) | (uint32(msg[7]) << 7) | (uint32(msg[8]) >> 1),
			RawLon:   (uint32(msg[8]&1) << 16) | (uint32(msg[9]) << 8) | uint32(msg[10]),
		}

	case metype == 19 && mesub >= 1 && mesub <= 4:
		if mesub == 1 || mesub == 2 {
			return decodeGroundspeed(msg, hdr)
		}
		return AirborneVelocityAirspeed{
			Hdr:     hdr,
			Heading: (360.0 / 128.0) * float32((uint16(msg[5]&3)<<5)|(uint16(msg[6])>>3)),
		}

	default:
		return Other{}
	}
}

func decodeGroundspeed(msg []byte, hdr DfHeader1) AirborneVelocityGroundspeed {
	ewDir := (msg[5] & 4) >> 2
	ewVelocity := (uint16(msg[5]&3) << 8) | uint16(msg[6])
	nsDir := (msg[7] & 0x80) >> 7
	nsVelocity := (uint16(msg[7]&0x7f) << 3) | (uint16(msg[8]&0xe0) >> 5)
	vertRateSource := (msg[8] & 0x10) >> 4
	vertRateSign := (msg[8] & 0x8) >> 3
	vertRate := (uint16(msg[8]&7) << 6) | (uint16(msg[9]&0xfc) >> 2)

	velocity := float32(math.Sqrt(float64(ewVelocity)*float64(ewVelocity) + float64(nsVelocity)*float64(nsVelocity)))

	var heading float32
	if velocity > 0 {
		ewv := float64(ewVelocity)
		nsv := float64(nsVelocity)
		if ewDir == 1 {
			ewv *= -1
		}
		if nsDir == 1 {
			nsv *= -1
		}
		heading = float32(math.Atan2(ewv, nsv) * 360.0 / (2 * math.Pi))
		if heading < 0 {
			heading += 360
		}
	}

	return AirborneVelocityGroundspeed{
		Hdr:            hdr,
		EWDir:          ewDir,
		EWVelocity:     ewVelocity,
		NSDir:          nsDir,
		NSVelocity:     nsVelocity,
		VertRateSource: vertRateSource,
		VertRateSign:   vertRateSign,
		VertRate:       vertRate,
		Velocity:       velocity,
		Heading:        heading,
	}
}
