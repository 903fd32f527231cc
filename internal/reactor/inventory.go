package reactor

import "sync"

// Bin is an in-memory Inventory that keeps what a core ejects so it can be
// handed back out again.
type Bin struct {
	mu        sync.Mutex
	rods      []*Rod
	pipes     []*Pipe
	materials map[Material]int
}

// NewBin creates an empty bin.
func NewBin() *Bin {
	return &Bin{materials: make(map[Material]int)}
}

func (b *Bin) StoreRod(rod *Rod) {
	if rod == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rods = append(b.rods, rod)
}

func (b *Bin) StorePipe(p *Pipe) {
	if p == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pipes = append(b.pipes, p)
}

func (b *Bin) SpawnMaterial(m Material, count int) {
	if count <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.materials[m] += count
}

// TakeRod removes and returns the stored rod with id, or nil.
func (b *Bin) TakeRod(id string) *Rod {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, rod := range b.rods {
		if rod.ID == id {
			b.rods = append(b.rods[:i], b.rods[i+1:]...)
			return rod
		}
	}
	return nil
}

// TakePipe removes and returns the oldest stored pipe, or nil.
func (b *Bin) TakePipe() *Pipe {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pipes) == 0 {
		return nil
	}
	p := b.pipes[0]
	b.pipes = b.pipes[1:]
	return p
}

// Rods returns the stored rods.
func (b *Bin) Rods() []*Rod {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Rod, len(b.rods))
	copy(out, b.rods)
	return out
}

// Pipes returns the stored pipes.
func (b *Bin) Pipes() []*Pipe {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Pipe, len(b.pipes))
	copy(out, b.pipes)
	return out
}

// Materials returns a copy of the material counts.
func (b *Bin) Materials() map[Material]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[Material]int, len(b.materials))
	for m, n := range b.materials {
		out[m] = n
	}
	return out
}

// ConsoleBank tracks the control consoles wired to a core.
type ConsoleBank struct {
	mu        sync.RWMutex
	connected map[string]struct{}
}

// NewConsoleBank creates a bank with the given consoles already connected.
func NewConsoleBank(ids ...string) *ConsoleBank {
	cb := &ConsoleBank{connected: make(map[string]struct{})}
	for _, id := range ids {
		cb.connected[id] = struct{}{}
	}
	return cb
}

func (cb *ConsoleBank) Connect(id string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.connected[id] = struct{}{}
}

func (cb *ConsoleBank) Disconnect(id string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.connected, id)
}

func (cb *ConsoleBank) ConnectedConsoleCount() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return len(cb.connected)
}
