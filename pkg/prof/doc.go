// Package prof records runtime profiles of engine workloads.
//
// Profiling is compiled in with the "profile" build tag:
//
//	go build -tags profile ./examples/serialport/echo
//
// Without the tag, [Start] returns an inert session and nothing is recorded,
// so callers keep their profiling hooks unconditionally.
//
// A session is configured with the output paths of the profiles to record.
// The CPU profile streams from [Start] to [Session.Stop]; the heap, block
// and mutex profiles are snapshots written by Stop. When HTTPAddr is set,
// the [net/http/pprof] handlers are served there for the session's lifetime.
//
//	s, err := prof.Start(prof.Config{
//		CPUProfile:  "cpu.prof",
//		HeapProfile: "heap.prof",
//	})
//	if err != nil {
//		return err
//	}
//	defer s.Stop()
//
// Only one session may be active at a time.
package prof
