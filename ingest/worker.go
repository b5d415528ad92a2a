package ingest

import (
	"math/rand"

	"github.com/km4kfl/beamrecv/beamform"
	"github.com/km4kfl/beamrecv/pipe"
)

// workerResult tags a worker's per-buffer candidate list with the index of
// the worker that produced it, so the orchestrator can add that worker's
// chunk offset while merging.
type workerResult struct {
	worker     int
	candidates []beamform.Candidate
}

// runWorker is the body of one beamforming worker goroutine: it holds the
// slot-weight cache for its slice of the global pipe pool and, on every
// Buffer command, runs the per-buffer loop (beamform.ProcessBuffer) and
// ships the merged candidates back. Workers are symmetric and stateless
// across buffers except for that slot cache.
func runWorker(workerIndex int, cmds <-chan pipe.Command, out chan<- workerResult, slotsPerWorker int, seed int64, randomizeAmplitudes bool) {
	slots := make([]beamform.SlotState, slotsPerWorker)
	rng := rand.New(rand.NewSource(seed))
	globalBase := workerIndex * slotsPerWorker

	for cmd := range cmds {
		switch c := cmd.(type) {
		case pipe.SetWeights:
			slots[c.Slot] = beamform.SlotState{Bound: true, Thetas: c.Thetas, Amplitudes: c.Amplitudes}
		case pipe.UnsetWeights:
			slots[c.Slot] = beamform.SlotState{}
		case pipe.Buffer:
			cands := beamform.ProcessBuffer(c.Bytes, nil, c.Streams, slots, globalBase, rng, randomizeAmplitudes)
			out <- workerResult{worker: workerIndex, candidates: cands}
		}
	}
}
