package event

import "sync"

// Callback receives events. It runs in whichever context delivered the event
// (interrupt or worker) and must not block.
type Callback func(Event)

// item is a queued event with its optional post-delivery hook.
type item struct {
	ev    Event
	after func()
}

// Dispatcher delivers events to a single callback, one at a time, in the
// order they were posted.
//
// Posting only queues. The first context to call Deliver becomes the
// delivering context and drains the queue, including events posted by the
// callback itself or by hooks, before it returns. A context calling Deliver
// while another one is delivering returns immediately; its events are
// delivered by the active context.
type Dispatcher struct {
	mutex      sync.Mutex
	cb         Callback
	queue      []item
	delivering bool
}

// SetCallback registers cb, replacing any previous callback. A nil callback
// discards events (hooks still run).
func (d *Dispatcher) SetCallback(cb Callback) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.cb = cb
}

// Post queues ev. after, if non-nil, runs in the delivering context right
// after the callback returns from handling ev and before the next event is
// delivered. Post never calls the callback and may be called with other
// locks held.
func (d *Dispatcher) Post(ev Event, after func()) {
	d.mutex.Lock()
	d.queue = append(d.queue, item{ev: ev, after: after})
	d.mutex.Unlock()
}

// Deliver drains the queue unless another context is already doing so.
// It must be called without holding any lock the callback or hooks acquire.
func (d *Dispatcher) Deliver() {
	d.mutex.Lock()
	if d.delivering {
		d.mutex.Unlock()
		return
	}
	d.delivering = true
	for len(d.queue) > 0 {
		it := d.queue[0]
		d.queue[0] = item{}
		d.queue = d.queue[1:]
		cb := d.cb
		d.mutex.Unlock()

		if cb != nil {
			cb(it.ev)
		}
		if it.after != nil {
			it.after()
		}

		d.mutex.Lock()
	}
	d.queue = d.queue[:0]
	d.delivering = false
	d.mutex.Unlock()
}

// Emit posts ev and delivers.
func (d *Dispatcher) Emit(ev Event) {
	d.Post(ev, nil)
	d.Deliver()
}

// Pending returns the number of queued events.
func (d *Dispatcher) Pending() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.queue)
}
