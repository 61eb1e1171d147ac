package prof

import "errors"

// ErrActive indicates a profiling session is already running.
var ErrActive = errors.New("profile session already active")

// Config selects the profiles a session records. Empty fields are skipped.
type Config struct {
	CPUProfile   string // CPU profile path, recorded from Start to Stop
	HeapProfile  string // heap snapshot path, written by Stop
	BlockProfile string // blocking profile path, written by Stop
	MutexProfile string // mutex contention profile path, written by Stop
	HTTPAddr     string // listen address for the pprof HTTP handlers
}

// Empty reports whether c records nothing.
func (c Config) Empty() bool {
	return c == Config{}
}
