package event

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/ardnew/dmauart/pkg"
)

func TestType_String(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{TxDone, "TxDone"},
		{TxAborted, "TxAborted"},
		{RxReady, "RxReady"},
		{RxBufRequest, "RxBufRequest"},
		{RxDisabled, "RxDisabled"},
		{RxStopped, "RxStopped"},
		{Type(0), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.typ.String(); got != tt.want {
				t.Errorf("Type.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvent_String(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{Event{Type: RxReady, Offset: 4, Len: 10}, "RxReady{offset=4 len=10}"},
		{Event{Type: TxDone, Len: 78}, "TxDone{len=78}"},
		{Event{Type: TxAborted, Len: 3}, "TxAborted{len=3}"},
		{Event{Type: RxStopped, Reason: pkg.StopHardwareFault}, "RxStopped{reason=hardware fault}"},
		{Event{Type: RxDisabled}, "RxDisabled"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.ev.String(); got != tt.want {
				t.Errorf("Event.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvent_Data(t *testing.T) {
	buf := []byte("abcdefgh")
	ev := Event{Type: RxReady, Buf: buf, Offset: 2, Len: 3}
	if got := ev.Data(); !bytes.Equal(got, []byte("cde")) {
		t.Errorf("Data() = %q, want %q", got, "cde")
	}
	if got := (Event{Type: RxBufRequest, Buf: buf}).Data(); got != nil {
		t.Errorf("Data() for non-ready event = %q, want nil", got)
	}
}

func TestEvent_Terminal(t *testing.T) {
	for _, typ := range []Type{TxDone, TxAborted, RxDisabled} {
		if !(Event{Type: typ}).Terminal() {
			t.Errorf("%s.Terminal() = false, want true", typ)
		}
	}
	for _, typ := range []Type{RxReady, RxBufRequest, RxStopped} {
		if (Event{Type: typ}).Terminal() {
			t.Errorf("%s.Terminal() = true, want false", typ)
		}
	}
}

func TestDispatcher_Order(t *testing.T) {
	var d Dispatcher
	var got []Type
	d.SetCallback(func(ev Event) { got = append(got, ev.Type) })

	d.Post(Event{Type: RxReady}, nil)
	d.Post(Event{Type: RxBufRequest}, nil)
	d.Post(Event{Type: RxDisabled}, nil)
	if len(got) != 0 {
		t.Fatal("Post delivered events")
	}
	d.Deliver()

	want := []Type{RxReady, RxBufRequest, RxDisabled}
	if len(got) != len(want) {
		t.Fatalf("delivered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, got[i], want[i])
		}
	}
	if d.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", d.Pending())
	}
}

func TestDispatcher_HookRunsBeforeNextEvent(t *testing.T) {
	var d Dispatcher
	var trace []string
	d.SetCallback(func(ev Event) { trace = append(trace, ev.Type.String()) })

	d.Post(Event{Type: RxBufRequest}, func() {
		trace = append(trace, "hook")
		d.Post(Event{Type: RxDisabled}, nil)
	})
	d.Post(Event{Type: TxDone}, nil)
	d.Deliver()

	want := []string{"RxBufRequest", "hook", "TxDone", "RxDisabled"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Errorf("trace[%d] = %v, want %v", i, trace[i], want[i])
		}
	}
}

func TestDispatcher_Reentrant(t *testing.T) {
	var d Dispatcher
	var got []Type
	depth := 0
	d.SetCallback(func(ev Event) {
		depth++
		if depth > 1 {
			t.Error("callback re-entered")
		}
		got = append(got, ev.Type)
		if ev.Type == RxBufRequest {
			// Emitting from the callback queues behind the current event.
			d.Emit(Event{Type: RxDisabled})
			if len(got) != 1 {
				t.Error("nested Emit delivered synchronously")
			}
		}
		depth--
	})

	d.Emit(Event{Type: RxBufRequest})
	if len(got) != 2 || got[1] != RxDisabled {
		t.Errorf("delivered %v, want [RxBufRequest RxDisabled]", got)
	}
}

func TestDispatcher_NilCallback(t *testing.T) {
	var d Dispatcher
	ran := false
	d.Post(Event{Type: RxReady}, func() { ran = true })
	d.Deliver()
	if !ran {
		t.Error("hook did not run without a callback")
	}
}

func TestDispatcher_SingleContext(t *testing.T) {
	var d Dispatcher
	var mutex sync.Mutex
	active := 0
	count := 0
	d.SetCallback(func(Event) {
		mutex.Lock()
		active++
		if active > 1 {
			t.Error("callback running in two contexts")
		}
		count++
		mutex.Unlock()

		time.Sleep(50 * time.Microsecond)

		mutex.Lock()
		active--
		mutex.Unlock()
	})

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				d.Emit(Event{Type: RxReady})
			}
		}()
	}
	wg.Wait()
	d.Deliver()

	mutex.Lock()
	defer mutex.Unlock()
	if count != workers*perWorker {
		t.Errorf("delivered %d events, want %d", count, workers*perWorker)
	}
}
