//go:build profile

package prof

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	rpprof "runtime/pprof"
	"sync"
	"time"
)

// Enabled reports whether profiling is compiled in.
const Enabled = true

var (
	activeMutex sync.Mutex
	active      bool
)

// Session is a running profiling session.
type Session struct {
	cfg   Config
	mutex sync.Mutex
	cpu   *os.File
	srv   *http.Server
	done  bool
}

// Start begins a session. It returns [ErrActive] while another one runs.
func Start(cfg Config) (*Session, error) {
	activeMutex.Lock()
	defer activeMutex.Unlock()

	if active {
		return nil, ErrActive
	}
	s := &Session{cfg: cfg}

	if cfg.BlockProfile != "" {
		runtime.SetBlockProfileRate(1)
	}
	if cfg.MutexProfile != "" {
		runtime.SetMutexProfileFraction(1)
	}
	if cfg.CPUProfile != "" {
		f, err := os.Create(cfg.CPUProfile)
		if err != nil {
			s.resetRates()
			return nil, fmt.Errorf("prof: create cpu profile: %w", err)
		}
		if err := rpprof.StartCPUProfile(f); err != nil {
			f.Close()
			s.resetRates()
			return nil, fmt.Errorf("prof: start cpu profile: %w", err)
		}
		s.cpu = f
	}
	if cfg.HTTPAddr != "" {
		if err := s.serve(cfg.HTTPAddr); err != nil {
			s.stopCPU()
			s.resetRates()
			return nil, err
		}
	}

	active = true
	return s, nil
}

// Addr returns the address the pprof handlers listen on, or "" when the
// session serves none.
func (s *Session) Addr() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.srv == nil {
		return ""
	}
	return s.srv.Addr
}

// Stop ends the session: it finishes the CPU profile, writes the snapshot
// profiles and shuts the HTTP handlers down. Stop is idempotent.
func (s *Session) Stop() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.done {
		return nil
	}
	s.done = true

	errs := []error{s.stopCPU()}
	errs = append(errs,
		writeSnapshot("heap", s.cfg.HeapProfile),
		writeSnapshot("block", s.cfg.BlockProfile),
		writeSnapshot("mutex", s.cfg.MutexProfile),
	)
	s.resetRates()

	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		errs = append(errs, s.srv.Shutdown(ctx))
		cancel()
	}

	activeMutex.Lock()
	active = false
	activeMutex.Unlock()

	return errors.Join(errs...)
}

func (s *Session) serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("prof: listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	s.srv = &http.Server{Addr: ln.Addr().String(), Handler: mux}
	go s.srv.Serve(ln)
	return nil
}

func (s *Session) stopCPU() error {
	if s.cpu == nil {
		return nil
	}
	rpprof.StopCPUProfile()
	err := s.cpu.Close()
	s.cpu = nil
	return err
}

func (s *Session) resetRates() {
	if s.cfg.BlockProfile != "" {
		runtime.SetBlockProfileRate(0)
	}
	if s.cfg.MutexProfile != "" {
		runtime.SetMutexProfileFraction(0)
	}
}

// writeSnapshot writes the named runtime profile to path.
func writeSnapshot(name, path string) error {
	if path == "" {
		return nil
	}
	p := rpprof.Lookup(name)
	if p == nil {
		return fmt.Errorf("prof: unknown profile %q", name)
	}
	if name == "heap" {
		runtime.GC()
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("prof: create %s profile: %w", name, err)
	}
	if err := p.WriteTo(f, 0); err != nil {
		f.Close()
		return fmt.Errorf("prof: write %s profile: %w", name, err)
	}
	return f.Close()
}
