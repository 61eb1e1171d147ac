// Package event defines the notifications the transport engine delivers to
// its owner and the dispatcher that orders them.
//
// # Ordering
//
// The engine posts events while holding the lock of the session that
// generated them, so queue order is generation order. Delivery happens after
// the lock is released: the first context that calls [Dispatcher.Deliver]
// runs the callback for every queued event, one at a time. Events posted
// from inside the callback are appended and delivered by the same context
// once the callback returns, so the callback never runs concurrently with
// itself and never re-enters.
//
// # Hooks
//
// An event may carry a hook that runs right after the callback returns.
// The receive path attaches one to [RxBufRequest]: a buffer supplied by the
// callback is bound, or the session is disabled, before any later event is
// delivered and before control returns to the interrupt or worker that
// generated the request.
package event
