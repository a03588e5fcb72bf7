package chat

import "sync"

type sentEvent struct {
	Room   string
	Except string
	ConnID string
	Event  string
	Data   any
}

// fakeSender records everything an engine emits so tests can assert on
// event order and payloads without a live websocket.
type fakeSender struct {
	mu           sync.Mutex
	broadcasts   []sentEvent
	direct       []sentEvent
	disconnected []string
}

func newFakeSender() *fakeSender {
	return &fakeSender{}
}

func (f *fakeSender) BroadcastToRoom(room, event string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, sentEvent{Room: room, Event: event, Data: data})
}

func (f *fakeSender) BroadcastToRoomExcept(room, exceptConnID, event string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, sentEvent{Room: room, Except: exceptConnID, Event: event, Data: data})
}

func (f *fakeSender) SendToConnection(connID, event string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.direct = append(f.direct, sentEvent{ConnID: connID, Event: event, Data: data})
}

func (f *fakeSender) Disconnect(connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, connID)
}

func (f *fakeSender) broadcastsOf(event string) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEvent
	for _, e := range f.broadcasts {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeSender) directOf(event string) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEvent
	for _, e := range f.direct {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
