package ingest

import "github.com/km4kfl/beamrecv/beamform"

// splitChunks divides buf (an S-stream interleaved sample buffer) into
// workerCount consecutive, slightly overlapping byte slices so no message
// straddling a chunk boundary is lost: every chunk but the last is
// extended by a full detection window (preamble plus long-message payload)
// of samples borrowed from the following chunk, so every candidate start
// position up to the boundary has its complete lookahead available.
// Returns each chunk's byte slice and the sample index (within buf) its
// first sample corresponds to.
func splitChunks(buf []byte, streams, workerCount int) ([][]byte, []uint64) {
	bytesPerSample := 4 * streams
	totalSamples := len(buf) / bytesPerSample
	base := totalSamples / workerCount

	chunks := make([][]byte, workerCount)
	starts := make([]uint64, workerCount)

	for i := 0; i < workerCount; i++ {
		startSample := i * base
		endSample := startSample + base + beamform.PreambleSamples + beamform.LongMsgSamples + 1
		if i == workerCount-1 || endSample > totalSamples {
			endSample = totalSamples
		}
		chunks[i] = buf[startSample*bytesPerSample : endSample*bytesPerSample]
		starts[i] = uint64(startSample)
	}
	return chunks, starts
}
