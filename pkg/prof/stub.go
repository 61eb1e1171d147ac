//go:build !profile

package prof

// Enabled reports whether profiling is compiled in.
const Enabled = false

// Session is an inert profiling session.
type Session struct{}

// Start returns an inert session; nothing is recorded.
func Start(Config) (*Session, error) {
	return &Session{}, nil
}

// Addr returns "".
func (*Session) Addr() string { return "" }

// Stop does nothing.
func (*Session) Stop() error { return nil }
