// Package ingest implements the orchestrator (C7): it owns the TCP sample
// socket, fans buffers out to beamforming workers, merges and decodes
// their candidates, and drives the entity tracker and its eviction
// heartbeat.
package ingest

import (
	"errors"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/km4kfl/beamrecv/beamform"
	"github.com/km4kfl/beamrecv/entity"
	"github.com/km4kfl/beamrecv/modes/crc"
	"github.com/km4kfl/beamrecv/modes/decode"
	"github.com/km4kfl/beamrecv/pipe"
	"github.com/km4kfl/beamrecv/sink"
)

var (
	// ErrBadStreamCount is returned when the ingress announces zero
	// interleaved streams.
	ErrBadStreamCount = errors.New("ingest: stream count must be nonzero")
	// ErrIngressClosed is returned when the sample socket is closed or
	// errors mid-read; the pipeline must stop.
	ErrIngressClosed = errors.New("ingest: sample ingress closed")
)

const (
	evictionHeartbeat = 5 * time.Second
	sampleRateHz      = beamform.SampleRateHz
)

// Sinks groups the optional egress paths a decoded non-Other message is
// offered to.
type Sinks struct {
	RawHex *sink.RawHexSink
	File   *sink.FileSink
}

// Orchestrator wires together the pipe manager, entity table, bit-error
// table, seen-address cache and optional sinks into the per-buffer
// control loop.
type Orchestrator struct {
	Pipes    *pipe.Manager
	Table    *entity.Table
	Seen     *decode.SeenMap
	ErrTable map[uint32]uint16
	Sinks    Sinks
	Log      *logrus.Logger

	workerCount         int
	slotsPerWorker      int
	randomizeAmplitudes bool
	results             chan workerResult

	ulaEnabled bool
	ulaSpacing float64

	mu    sync.Mutex
	stats Stats

	lastEviction time.Time
}

// NewOrchestrator spawns workerCount beamforming worker goroutines, each
// owning slotsPerWorker pipe slots, and returns an orchestrator ready to
// run the ingest loop. randomizeAmplitudes widens each free slot's blind
// search to draw a random per-antenna amplitude alongside its random theta.
// If ulaEnabled, Run arms the pipe manager's ULA sweep once the real
// antenna (stream) count is known from the sample source's header byte;
// ArmULA's thetas/amplitudes are sized off that count, so it cannot be
// armed any earlier.
func NewOrchestrator(pipes *pipe.Manager, table *entity.Table, seen *decode.SeenMap, errTable map[uint32]uint16, sinks Sinks, log *logrus.Logger, randomizeAmplitudes bool, ulaEnabled bool, ulaSpacing float64) *Orchestrator {
	o := &Orchestrator{
		Pipes:               pipes,
		Table:               table,
		Seen:                seen,
		ErrTable:            errTable,
		Sinks:               sinks,
		Log:                 log,
		workerCount:         pipes.WorkerCount(),
		slotsPerWorker:      pipes.SlotsPerWorker(),
		randomizeAmplitudes: randomizeAmplitudes,
		results:             make(chan workerResult, pipes.WorkerCount()),
		ulaEnabled:          ulaEnabled,
		ulaSpacing:          ulaSpacing,
		lastEviction:        time.Time{},
	}

	for i := 0; i < o.workerCount; i++ {
		go runWorker(i, pipes.Worker(i), o.results, o.slotsPerWorker, int64(i)+1, randomizeAmplitudes)
	}

	return o
}

// Stats returns a point-in-time copy of the running counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.stats
	s.PerStream = append([]DFCounts(nil), o.stats.PerStream...)
	return s
}

// Run reads the stream-count header then loops forever: fill a buffer,
// dispatch, merge, decode, sink, track, evict. Returns when the ingress
// closes or errors.
func (o *Orchestrator) Run(conn net.Conn) error {
	var header [1]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return ErrIngressClosed
	}
	streams := int(header[0])
	if streams == 0 {
		return ErrBadStreamCount
	}

	o.mu.Lock()
	o.stats.PerStream = make([]DFCounts, streams)
	o.mu.Unlock()

	if o.ulaEnabled {
		o.Pipes.ArmULA(o.ulaSpacing, streams)
	}

	bufSize := beamform.LongMsgSamples * 1024 * 4 * streams
	buf := make([]byte, bufSize)
	var sampleIndexBase uint64

	nominalBufferSeconds := float64(bufSize) / float64(4*streams) / float64(sampleRateHz)
	o.lastEviction = time.Now()

	for {
		if _, err := io.ReadFull(conn, buf); err != nil {
			return ErrIngressClosed
		}

		start := time.Now()
		merged := o.processBuffer(buf, streams, sampleIndexBase)
		o.diagnosePerStream(buf, streams)

		for _, m := range merged {
			o.Table.Apply(m.Common.SampleNdx, m)
			o.emit(m)
		}

		if time.Since(o.lastEviction) >= evictionHeartbeat {
			evicted := o.Table.EvictStale(sampleIndexBase)
			if len(evicted) > 0 && o.Log != nil {
				o.Log.WithField("count", len(evicted)).Info("evicted stale entities")
			}
			o.lastEviction = time.Now()
		}

		elapsed := time.Since(start).Seconds()
		tooSlow := elapsed > nominalBufferSeconds*0.95

		o.mu.Lock()
		o.stats.BuffersProcessed++
		o.stats.LastBufferTooSlow = tooSlow
		o.stats.LastBufferSeconds = elapsed
		o.mu.Unlock()

		if tooSlow && o.Log != nil {
			o.Log.WithFields(logrus.Fields{
				"elapsed_s": elapsed,
				"nominal_s": nominalBufferSeconds,
			}).Warn("TOO SLOW: buffer processing exceeded 95% of nominal duration")
		}

		sampleIndexBase += uint64(bufSize / (4 * streams))
	}
}

// processBuffer splits buf across workers, collects and merges their
// candidates, decodes each, and returns the fully decoded messages with
// globalized sample indices.
func (o *Orchestrator) processBuffer(buf []byte, streams int, sampleIndexBase uint64) []decode.Message {
	chunks, starts := splitChunks(buf, streams, o.workerCount)
	for i, chunk := range chunks {
		o.Pipes.SendBuffer(i, chunk, streams)
	}

	merged := make(map[uint64]beamform.Candidate)
	for i := 0; i < o.workerCount; i++ {
		r := <-o.results
		base := starts[r.worker]
		for _, c := range r.candidates {
			c.SampleIndex += base
			if prev, ok := merged[c.SampleIndex]; !ok || c.SNR > prev.SNR {
				merged[c.SampleIndex] = c
			}
		}
	}

	indices := make([]uint64, 0, len(merged))
	for idx := range merged {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	out := make([]decode.Message, 0, len(indices))
	for _, idx := range indices {
		cand := merged[idx]
		msg, err := decode.Decode(cand, o.ErrTable, o.Seen)
		if err != nil {
			continue
		}
		msg.Common.SampleNdx += sampleIndexBase

		o.mu.Lock()
		o.stats.Combined.add(msg.Specific)
		o.mu.Unlock()

		out = append(out, msg)
	}
	return out
}

// diagnosePerStream runs a single-element pass per antenna (all other
// amplitudes zeroed) purely for the status dump's per-antenna DF counters;
// it does not feed decoding or the entity table. Each antenna's pass is
// independent (its own Synthesize/Detect call over read-only buf, writing
// to its own stats slot), so they fan out on a bounded errgroup rather than
// running one after another.
func (o *Orchestrator) diagnosePerStream(buf []byte, streams int) {
	o.mu.Lock()
	perStream := o.stats.PerStream
	o.mu.Unlock()
	if len(perStream) != streams {
		return
	}

	var g errgroup.Group
	g.SetLimit(streams)

	for s := 0; s < streams; s++ {
		s := s
		g.Go(func() error {
			amplitudes := make([]float64, streams)
			amplitudes[s] = 1
			thetas := make([]float64, streams-1)

			mag := beamform.Synthesize(buf, streams, thetas, amplitudes)
			cands := beamform.Detect(mag, streams, thetas, amplitudes, -1, nil)

			counts := DFCounts{}
			for _, c := range cands {
				if len(c.Bytes) == 0 {
					continue
				}
				if crc.Checksum(c.Bytes) != 0 {
					continue
				}
				counts.add(c.Bytes[0] >> 3)
			}

			o.mu.Lock()
			o.stats.PerStream[s] = counts
			o.mu.Unlock()
			return nil
		})
	}
	g.Wait()
}

func (o *Orchestrator) emit(m decode.Message) {
	if _, isOther := m.Specific.(decode.Other); isOther {
		return
	}

	rec := sink.Record{
		Msg:        m.Common.Msg,
		Samples:    m.Common.Samples,
		SampleNdx:  m.Common.SampleNdx,
		SNR:        m.Common.SNR,
		Thetas:     m.Common.Thetas,
		Amplitudes: m.Common.Amplitudes,
	}

	var g errgroup.Group
	if o.Sinks.RawHex != nil {
		g.Go(func() error {
			if err := o.Sinks.RawHex.Write(rec); err != nil && o.Log != nil {
				o.Log.WithError(err).Warn("raw-hex sink write failed")
			}
			return nil
		})
	}
	if o.Sinks.File != nil {
		g.Go(func() error {
			if err := o.Sinks.File.Write(rec); err != nil && o.Log != nil {
				o.Log.WithError(err).Warn("file sink write failed")
			}
			return nil
		})
	}
	g.Wait()
}
