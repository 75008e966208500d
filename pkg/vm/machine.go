package vm

import "fmt"

// Machine is the mutable state of one run: the value stack, the frame
// cursor, and the stack of saved program counters. Capacities are fixed at
// construction; nothing grows while running.
type Machine struct {
	values []int64
	sp     int // base of the active frame

	calls []int32
	csp   int
}

// NewMachine allocates a machine with the given capacities.
func NewMachine(stackSize, callStackSize int) *Machine {
	if stackSize < 0 {
		stackSize = 0
	}
	if callStackSize < 0 {
		callStackSize = 0
	}
	return &Machine{
		values: make([]int64, stackSize),
		calls:  make([]int32, callStackSize),
	}
}

// Reset zeroes the value stack and empties both cursors.
func (m *Machine) Reset() {
	clear(m.values)
	m.sp = 0
	m.csp = 0
}

// SP returns the base of the active frame.
func (m *Machine) SP() int { return m.sp }

// Depth returns the number of pending returns.
func (m *Machine) Depth() int { return m.csp }

// StackSize returns the value-stack capacity in slots.
func (m *Machine) StackSize() int { return len(m.values) }

// CallStackSize returns the call-stack capacity.
func (m *Machine) CallStackSize() int { return len(m.calls) }

// abs resolves a frame-relative slot. Every slot access goes through here.
func (m *Machine) abs(rel int32) (int, error) {
	a := int64(m.sp) + int64(rel)
	if a < 0 || a >= int64(len(m.values)) {
		return 0, fmt.Errorf("%w: sp %d%+d outside [0, %d)", ErrSlotOutOfRange, m.sp, rel, len(m.values))
	}
	return int(a), nil
}

// Get reads the slot at rel from the frame base.
func (m *Machine) Get(rel int32) (int64, error) {
	a, err := m.abs(rel)
	if err != nil {
		return 0, err
	}
	return m.values[a], nil
}

// Put writes the slot at rel from the frame base.
func (m *Machine) Put(rel int32, v int64) error {
	a, err := m.abs(rel)
	if err != nil {
		return err
	}
	m.values[a] = v
	return nil
}

// Enter advances the frame base by n slots.
func (m *Machine) Enter(n int64) error {
	return m.move(n)
}

// Leave moves the frame base back by n slots.
func (m *Machine) Leave(n int64) error {
	return m.move(-n)
}

func (m *Machine) move(delta int64) error {
	sp := int64(m.sp) + delta
	if sp < 0 || sp > int64(len(m.values)) {
		return fmt.Errorf("%w: %d%+d outside [0, %d]", ErrFrameOutOfRange, m.sp, delta, len(m.values))
	}
	m.sp = int(sp)
	return nil
}

// PushCall saves a program counter.
func (m *Machine) PushCall(pc int32) error {
	if m.csp >= len(m.calls) {
		return fmt.Errorf("%w: depth %d", ErrCallStackOverflow, len(m.calls))
	}
	m.calls[m.csp] = pc
	m.csp++
	return nil
}

// PopCall removes and returns the most recently saved program counter.
func (m *Machine) PopCall() (int32, error) {
	if m.csp == 0 {
		return 0, ErrCallStackEmpty
	}
	m.csp--
	return m.calls[m.csp], nil
}

// Snapshot copies n slots starting at the frame base, clipped to capacity.
func (m *Machine) Snapshot(n int) []int64 {
	end := m.sp + n
	if end > len(m.values) {
		end = len(m.values)
	}
	if end < m.sp {
		return nil
	}
	out := make([]int64, end-m.sp)
	copy(out, m.values[m.sp:end])
	return out
}

// Churn is the value-stack self-test: it stores n values at the current
// frame, then grows the frame by 0, 1, ..., rounds-1 slots and shrinks it
// back in the same order, verifying after each step that all n values are
// still readable at their shifted offsets. The frame base is restored on
// success.
func (m *Machine) Churn(n, rounds int) error {
	for i := 0; i < n; i++ {
		if err := m.Put(int32(i), int64(i)); err != nil {
			return err
		}
	}
	verify := func(off int) error {
		for i := 0; i < n; i++ {
			v, err := m.Get(int32(i - off))
			if err != nil {
				return err
			}
			if v != int64(i) {
				return fmt.Errorf("slot %d at offset %d: got %d", i, i-off, v)
			}
		}
		return nil
	}

	off := 0
	for j := 0; j < rounds; j++ {
		if err := verify(off); err != nil {
			return err
		}
		if err := m.Enter(int64(j)); err != nil {
			return err
		}
		off += j
	}
	for j := 0; j < rounds; j++ {
		if err := verify(off); err != nil {
			return err
		}
		if err := m.Leave(int64(j)); err != nil {
			return err
		}
		off -= j
	}
	return verify(off)
}
