package hyperlapse

import "sync"

// EventType names a notification emitted to subscribers.
type EventType string

const (
	EventError         EventType = "error"
	EventFrame         EventType = "frame"
	EventPlay          EventType = "play"
	EventPause         EventType = "pause"
	EventLoadProgress  EventType = "load.progress"
	EventLoadComplete  EventType = "load.complete"
	EventLoadCanceled  EventType = "load.canceled"
	EventRouteProgress EventType = "route.progress"
	EventRouteComplete EventType = "route.complete"
)

// Event is the payload handed to listeners. Only the fields relevant to Type
// are set:
//
//	error           Err
//	frame           Position, Point
//	load.progress   Position (number of images loaded so far)
//	route.progress  Point
//	route.complete  Points
type Event struct {
	Type     EventType
	Position int
	Point    *PanoramaRecord
	Points   []*PanoramaRecord
	Err      error
}

// Listener receives events synchronously on the goroutine that produced them.
type Listener func(Event)

type subscription struct {
	id int
	fn Listener
}

type observers struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription
}

func (o *observers) subscribe(fn Listener) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	id := o.nextID
	o.subs = append(o.subs, subscription{id: id, fn: fn})
	return func() { o.unsubscribe(id) }
}

func (o *observers) unsubscribe(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.subs {
		if s.id == id {
			o.subs = append(o.subs[:i], o.subs[i+1:]...)
			return
		}
	}
}

func (o *observers) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	o.mu.Lock()
	subs := make([]subscription, len(o.subs))
	copy(subs, o.subs)
	o.mu.Unlock()

	for _, e := range events {
		for _, s := range subs {
			s.fn(e)
		}
	}
}
