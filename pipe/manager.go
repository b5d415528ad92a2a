// Package pipe manages the steering-vector slots handed out to each
// beamforming worker: one address is bound to at most one slot at a time,
// and workers receive their slot updates over an ordered command channel.
package pipe

import "sync"

// Command is sent from the orchestrator to a worker's dedicated channel.
type Command interface {
	isCommand()
}

// Buffer hands a worker the next raw sample buffer to process.
type Buffer struct {
	Bytes   []byte
	Streams int
}

// SetWeights binds a worker-local slot to a fixed steering vector.
type SetWeights struct {
	Slot       int
	Thetas     []float64
	Amplitudes []float64
}

// UnsetWeights releases a worker-local slot back to random search.
type UnsetWeights struct {
	Slot int
}

func (Buffer) isCommand()       {}
func (SetWeights) isCommand()   {}
func (UnsetWeights) isCommand() {}

// Manager owns the global slot pool (workerCount * slotsPerWorker slots),
// the address<->slot bijection, and the per-worker command channels.
type Manager struct {
	mu sync.Mutex

	txs            []chan Command
	slotsPerWorker int

	addrToSlot map[uint32]int // global slot index
	slotToAddr map[int]uint32

	forced map[int]bool // slots force-set by ArmULA; allocate must not steal these
}

// NewManager builds a manager for workerCount workers, each owning
// slotsPerWorker slots, and wires one command channel per worker.
func NewManager(workerCount, slotsPerWorker int) *Manager {
	m := &Manager{
		txs:            make([]chan Command, workerCount),
		slotsPerWorker: slotsPerWorker,
		addrToSlot:     make(map[uint32]int),
		slotToAddr:     make(map[int]uint32),
		forced:         make(map[int]bool),
	}
	for i := range m.txs {
		m.txs[i] = make(chan Command, 64)
	}
	return m
}

// Worker returns the command channel for worker i. Workers read from this
// channel to receive buffers and weight updates in order.
func (m *Manager) Worker(i int) <-chan Command {
	return m.txs[i]
}

func (m *Manager) split(globalSlot int) (worker, local int) {
	return globalSlot / m.slotsPerWorker, globalSlot % m.slotsPerWorker
}

// AllocateForAddress binds addr to a slot bound to thetas/amplitudes. If
// addr already owns a slot, that slot's weights are updated in place.
// Otherwise the lowest-indexed free, non-forced slot is claimed. Returns
// false if no free slot exists.
func (m *Manager) AllocateForAddress(addr uint32, thetas, amplitudes []float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if slot, ok := m.addrToSlot[addr]; ok {
		m.sendSetWeights(slot, thetas, amplitudes)
		return true
	}

	total := len(m.txs) * m.slotsPerWorker
	for slot := 0; slot < total; slot++ {
		if _, taken := m.slotToAddr[slot]; taken {
			continue
		}
		if m.forced[slot] {
			continue
		}
		m.slotToAddr[slot] = addr
		m.addrToSlot[addr] = slot
		m.sendSetWeights(slot, thetas, amplitudes)
		return true
	}
	return false
}

func (m *Manager) sendSetWeights(globalSlot int, thetas, amplitudes []float64) {
	worker, local := m.split(globalSlot)
	m.txs[worker] <- SetWeights{Slot: local, Thetas: thetas, Amplitudes: amplitudes}
}

// ReleaseAddress drops addr's binding, if any, and unsets its slot.
// Idempotent: releasing an address with no binding is a no-op.
func (m *Manager) ReleaseAddress(addr uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.addrToSlot[addr]
	if !ok {
		return
	}
	delete(m.addrToSlot, addr)
	delete(m.slotToAddr, slot)

	worker, local := m.split(slot)
	m.txs[worker] <- UnsetWeights{Slot: local}
}

// SlotForAddress reports the global slot bound to addr, if any.
func (m *Manager) SlotForAddress(addr uint32) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.addrToSlot[addr]
	return slot, ok
}

// BroadcastBuffer sends the same buffer to every worker. Fan-in of the
// resulting per-worker message lists is the orchestrator's job.
func (m *Manager) BroadcastBuffer(buf []byte, streams int) {
	for _, tx := range m.txs {
		tx <- Buffer{Bytes: buf, Streams: streams}
	}
}

// SendBuffer hands worker i its own chunk of the sample stream, distinct
// from what any other worker receives. Used for the split-with-overlap
// dispatch the orchestrator performs per buffer.
func (m *Manager) SendBuffer(worker int, buf []byte, streams int) {
	m.txs[worker] <- Buffer{Bytes: buf, Streams: streams}
}

// WorkerCount and SlotsPerWorker expose the pool shape for callers that need
// to size local per-worker slot-state slices (e.g. beamform.ProcessBuffer).
func (m *Manager) WorkerCount() int    { return len(m.txs) }
func (m *Manager) SlotsPerWorker() int { return m.slotsPerWorker }
