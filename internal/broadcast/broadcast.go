package broadcast

// Message is the wire envelope for everything pushed to clients.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Broadcaster delivers payloads to all members of a logical room. The core
// managers depend only on this interface; transport details live in Hub.
type Broadcaster interface {
	// Join adds a client to a room. Unknown clients are ignored.
	Join(room, clientID string)
	// Leave removes a client from a room.
	Leave(room, clientID string)
	// LeaveAll removes a client from every room it is in.
	LeaveAll(clientID string)
	// Emit sends an event to every member of a room.
	Emit(room, event string, data interface{})
	// EmitTo sends an event to a single client.
	EmitTo(clientID, event string, data interface{})
	// EmitAll sends an event to every connected client.
	EmitAll(event string, data interface{})
}
