package broadcast

import "sync"

// Recorded is one captured emit.
type Recorded struct {
	Room  string
	Event string
	Data  interface{}
}

// Recorder is a Broadcaster that captures emits for assertions in tests.
type Recorder struct {
	mu      sync.Mutex
	emitted []Recorded
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Join(room, clientID string)  {}
func (r *Recorder) Leave(room, clientID string) {}
func (r *Recorder) LeaveAll(clientID string)    {}

func (r *Recorder) Emit(room, event string, data interface{}) {
	r.mu.Lock()
	r.emitted = append(r.emitted, Recorded{Room: room, Event: event, Data: data})
	r.mu.Unlock()
}

func (r *Recorder) EmitTo(clientID, event string, data interface{}) {
	r.Emit("@"+clientID, event, data)
}

func (r *Recorder) EmitAll(event string, data interface{}) {
	r.Emit("*", event, data)
}

// Events returns every captured emit with the given event name, in order.
func (r *Recorder) Events(event string) []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Recorded
	for _, e := range r.emitted {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// RoomEvents returns every captured emit to the given room, in order.
func (r *Recorder) RoomEvents(room string) []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Recorded
	for _, e := range r.emitted {
		if e.Room == room {
			out = append(out, e)
		}
	}
	return out
}

// All returns every captured emit.
func (r *Recorder) All() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.emitted))
	copy(out, r.emitted)
	return out
}

// Reset clears the capture buffer.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.emitted = nil
	r.mu.Unlock()
}
