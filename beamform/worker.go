package beamform

import (
	"math"
	"math/rand"
)

// SlotState is one worker's view of a pipe slot: either free (beamformer
// draws a random theta per buffer) or bound to a fixed steering vector.
type SlotState struct {
	Bound      bool
	Thetas     []float64
	Amplitudes []float64
}

// ProcessBuffer runs the per-buffer loop across every pipe slot owned by
// a worker: free slots get a fresh random theta per buffer,
// bound slots reuse their stored steering vector. Candidates from every
// slot are merged by sample index, keeping the highest SNR on collision.
// globalPipeBase is the first global pipe index owned by this worker, so
// PipeIndex on emitted candidates is a global index, not a local one. When
// randomizeAmplitudes is set, free slots also draw a random per-antenna
// amplitude instead of a fixed unity gain, widening the blind search.
func ProcessBuffer(buf []byte, iqBuf []int16, streams int, slots []SlotState, globalPipeBase int, rng *rand.Rand, randomizeAmplitudes bool) []Candidate {
	best := make(map[uint64]Candidate)

	amplitudes := make([]float64, streams)
	thetas := make([]float64, streams-1)

	for local, slot := range slots {
		if slot.Bound {
			copy(thetas, slot.Thetas)
			copy(amplitudes, slot.Amplitudes)
		} else {
			for i := range thetas {
				thetas[i] = rng.Float64()*2*math.Pi - math.Pi
			}
			for i := range amplitudes {
				if randomizeAmplitudes {
					amplitudes[i] = rng.Float64()
				} else {
					amplitudes[i] = 1.0
				}
			}
		}

		mag := Synthesize(buf, streams, thetas, amplitudes)
		cands := Detect(mag, streams, thetas, amplitudes, globalPipeBase+local, iqBuf)

		for _, c := range cands {
			if prev, ok := best[c.SampleIndex]; !ok || c.SNR > prev.SNR {
				best[c.SampleIndex] = c
			}
		}
	}

	out := make([]Candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	return out
}
