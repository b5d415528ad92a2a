package beamform

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// synthFixture builds a fake interleaved I/Q buffer of n samples over the
// given number of antenna streams, filled with seeded random bytes so the
// fast paths and the general loop can be compared on the same input.
func synthFixture(n, streams int) []byte {
	rng := rand.New(rand.NewSource(1))
	buf := make([]byte, n*streams*4)
	for i := range buf {
		buf[i] = byte(rng.Intn(256))
	}
	return buf
}

func TestSynthesizeS2MatchesGeneralLoop(t *testing.T) {
	buf := synthFixture(64, 2)
	fast := SynthesizeS2(buf, 0.37, 1.0, 0.8)

	general := synthesizeGeneral(buf, 2, []float64{0.37}, []float64{1.0, 0.8})
	require.Equal(t, len(fast), len(general))
	for i := range fast {
		require.InDelta(t, general[i], fast[i], 1e-9)
	}
}

func TestSynthesizeS4MatchesGeneralLoop(t *testing.T) {
	buf := synthFixture(64, 4)
	thetas := []float64{0.1, -0.6, 1.2}
	amps := []float64{1.0, 0.9, 1.1, 0.7}

	fast := SynthesizeS4(buf, thetas, amps)
	general := synthesizeGeneral(buf, 4, thetas, amps)
	require.Equal(t, len(fast), len(general))
	for i := range fast {
		require.InDelta(t, general[i], fast[i], 1e-9)
	}
}

func TestSynthesizePanicsOnMismatchedLengths(t *testing.T) {
	buf := synthFixture(8, 2)
	require.Panics(t, func() {
		Synthesize(buf, 2, []float64{0.1, 0.2}, []float64{1.0, 1.0})
	})
	require.Panics(t, func() {
		Synthesize(buf, 2, []float64{0.1}, []float64{1.0})
	})
}

// syntheticPreambleMag builds a magnitude envelope containing exactly one
// valid preamble (at x=0) followed by a flat payload at the low level, matching the
// shape detectAt checks for.
func syntheticPreambleMag(payloadBits int) []float64 {
	mag := make([]float64, PreambleSamples+payloadBits*2+4)
	// preamble peaks at 0,2,7,9 high; 1,3,4,5,6,8 low.
	high := 10.0
	low := 1.0
	pattern := []float64{high, low, high, low, low, low, low, high, low, high, low, low, low, low, low, low}
	copy(mag, pattern)
	for i := PreambleSamples; i < len(mag); i++ {
		mag[i] = low
	}
	return mag
}

func TestDetectAtFindsSyntheticPreamble(t *testing.T) {
	mag := syntheticPreambleMag(LongMsgBits)
	snr, ok := detectAt(mag, 0)
	require.True(t, ok)
	require.Greater(t, snr, 0.0)
}

func TestDetectAtRejectsFlatSignal(t *testing.T) {
	mag := make([]float64, PreambleSamples+8)
	_, ok := detectAt(mag, 0)
	require.False(t, ok)
}

func TestDetectIsIdempotentOverRepeatedCalls(t *testing.T) {
	mag := syntheticPreambleMag(LongMsgBits)
	first := Detect(mag, 2, []float64{0}, []float64{1, 1}, 0, nil)
	second := Detect(mag, 2, []float64{0}, []float64{1, 1}, 0, nil)
	require.Equal(t, len(first), len(second))
	for i := range first {
		require.Equal(t, first[i].SampleIndex, second[i].SampleIndex)
		require.Equal(t, first[i].Bytes, second[i].Bytes)
	}
}

func TestProcessBufferDedupsBySampleIndexKeepingHighestSNR(t *testing.T) {
	buf := synthFixture(2000, 2)
	slots := []SlotState{
		{Bound: true, Thetas: []float64{0.0}, Amplitudes: []float64{1, 1}},
		{Bound: true, Thetas: []float64{0.0}, Amplitudes: []float64{1, 1}},
	}
	rng := rand.New(rand.NewSource(7))

	cands := ProcessBuffer(buf, nil, 2, slots, 0, rng, false)
	seen := make(map[uint64]bool)
	for _, c := range cands {
		require.False(t, seen[c.SampleIndex], "duplicate sample index %d in merged output", c.SampleIndex)
		seen[c.SampleIndex] = true
	}

	// One preamble on stream 0 at sample 100, seen by two slots of which
	// the second doubles stream 0's gain: the merge keeps a single
	// candidate, the louder one from slot 1.
	pre := make([]byte, 2000*2*4)
	high := int16(10000)
	for _, off := range []int{0, 2, 7, 9} {
		b := (100 + off) * 2 * 4
		pre[b] = byte(uint16(high))
		pre[b+1] = byte(uint16(high) >> 8)
	}
	gainSlots := []SlotState{
		{Bound: true, Thetas: []float64{0.0}, Amplitudes: []float64{1, 1}},
		{Bound: true, Thetas: []float64{0.0}, Amplitudes: []float64{2, 1}},
	}
	merged := ProcessBuffer(pre, nil, 2, gainSlots, 0, rng, false)
	require.Len(t, merged, 1)
	require.EqualValues(t, 100, merged[0].SampleIndex)
	require.Equal(t, 1, merged[0].PipeIndex)
}

func TestProcessBufferDrawsFreshThetaForFreeSlots(t *testing.T) {
	buf := synthFixture(256, 2)
	slots := []SlotState{{Bound: false}}
	rng := rand.New(rand.NewSource(42))

	// Two consecutive calls with the same rng stream must not silently
	// reuse a stale theta; ProcessBuffer itself must not panic on a free
	// slot with nil Thetas/Amplitudes.
	require.NotPanics(t, func() {
		ProcessBuffer(buf, nil, 2, slots, 0, rng, true)
		ProcessBuffer(buf, nil, 2, slots, 0, rng, true)
	})

	// Each call draws one theta and two amplitudes for the free slot, so
	// rng must now sit six draws past a fresh source with the same seed.
	ref := rand.New(rand.NewSource(42))
	for i := 0; i < 6; i++ {
		ref.Float64()
	}
	require.Equal(t, ref.Float64(), rng.Float64())
}
