package serialport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/ardnew/dmauart/hal"
	"github.com/ardnew/dmauart/hal/sim"
	"github.com/ardnew/dmauart/pkg"
)

// Defaults applied by DefaultConfig and for zero Config fields.
const (
	DefaultBaudRate = 115200
	DefaultReadSize = 256

	// MinIdleTime is the shortest idle time used; read timeouts below it are
	// not honored reliably by host serial drivers.
	MinIdleTime = time.Millisecond
)

// Port is the part of [serial.Port] a Bridge uses.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Drain() error
}

var _ Port = (serial.Port)(nil)

// Config describes the serial port.
type Config struct {
	Path     string
	BaudRate int
	DataBits int
	Parity   serial.Parity
	StopBits serial.StopBits

	// IdleTime is the read timeout that marks the line idle. Zero derives
	// about two character times from BaudRate.
	IdleTime time.Duration

	// ReadSize is the size of each port read.
	ReadSize int
}

// DefaultConfig returns an 8N1 configuration at DefaultBaudRate.
func DefaultConfig(path string) Config {
	return Config{
		Path:     path,
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
		ReadSize: DefaultReadSize,
	}
}

// idleTime returns the idle timeout: IdleTime when set, otherwise about
// two character times at 10 bits per character.
func (c Config) idleTime() time.Duration {
	t := c.IdleTime
	if t <= 0 && c.BaudRate > 0 {
		perBit := time.Second / time.Duration(c.BaudRate)
		t = 2 * 10 * perBit
	}
	if t < MinIdleTime {
		t = MinIdleTime
	}
	return t
}

func (c Config) mode() *serial.Mode {
	mode := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		Parity:   c.Parity,
		StopBits: c.StopBits,
	}
	if mode.BaudRate <= 0 {
		mode.BaudRate = DefaultBaudRate
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	return mode
}

// Bridge connects a serial port to a simulated peripheral.
type Bridge struct {
	port Port
	cfg  Config
	ctrl *sim.Controller

	mutex     sync.Mutex
	err       error
	closeCh   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// ListPorts returns the serial ports present on the host.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialport: list: %w", err)
	}
	return ports, nil
}

// Open opens the port at cfg.Path and starts a bridge over it.
func Open(cfg Config, opts ...sim.Option) (*Bridge, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("serialport: empty path: %w", pkg.ErrInvalidArgument)
	}
	p, err := serial.Open(cfg.Path, cfg.mode())
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", cfg.Path, err)
	}
	b, err := New(p, cfg, opts...)
	if err != nil {
		p.Close()
		return nil, err
	}
	return b, nil
}

// New starts a bridge over an open port. The bridge owns p and closes it.
func New(p Port, cfg Config, opts ...sim.Option) (*Bridge, error) {
	if p == nil {
		return nil, fmt.Errorf("serialport: nil port: %w", pkg.ErrInvalidArgument)
	}
	if cfg.ReadSize <= 0 {
		cfg.ReadSize = DefaultReadSize
	}
	idle := cfg.idleTime()
	if err := p.SetReadTimeout(idle); err != nil {
		return nil, fmt.Errorf("serialport: set read timeout: %w", err)
	}
	if err := p.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("serialport: reset input: %w", err)
	}

	b := &Bridge{
		port:    p,
		cfg:     cfg,
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
	b.ctrl = sim.New(append(opts, sim.WithTransmitter(b.transmit))...)
	go b.readLoop()

	pkg.LogInfo(pkg.ComponentSerial, "port bridged",
		"path", cfg.Path,
		"baud", cfg.BaudRate,
		"idle", idle)
	return b, nil
}

// Controller returns the peripheral and DMA controller fed by the port.
func (b *Bridge) Controller() *sim.Controller {
	return b.ctrl
}

// Attach routes the controller's interrupts to h.
func (b *Bridge) Attach(h hal.InterruptHandler) {
	b.ctrl.SetHandler(h)
}

// Err returns the error that ended the read loop, if any.
func (b *Bridge) Err() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.err
}

// Done is closed when the read loop exits.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Close stops the read loop, closes the port and stops interrupt delivery.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.closeCh)
		err = b.port.Close()
		<-b.done
		b.ctrl.Close()
	})
	return err
}

func (b *Bridge) closing() bool {
	select {
	case <-b.closeCh:
		return true
	default:
		return false
	}
}

// readLoop feeds the controller. A read that returns nothing after data
// was received marks the line idle.
func (b *Bridge) readLoop() {
	defer close(b.done)

	buf := make([]byte, b.cfg.ReadSize)
	active := false
	for {
		n, err := b.port.Read(buf)
		if n > 0 {
			if k := b.ctrl.Receive(buf[:n]); k < n {
				pkg.LogWarn(pkg.ComponentSerial, "receive FIFO overrun", "dropped", n-k)
			}
			active = true
		}
		if b.closing() {
			return
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				pkg.LogError(pkg.ComponentSerial, "read failed", "error", err)
			}
			b.mutex.Lock()
			b.err = err
			b.mutex.Unlock()
			return
		}
		if n == 0 && active {
			b.ctrl.Idle()
			active = false
		}
	}
}

// transmit writes a transmit block to the port and waits until it left.
func (b *Bridge) transmit(p []byte) error {
	for len(p) > 0 {
		n, err := b.port.Write(p)
		if err != nil {
			return fmt.Errorf("serialport: write: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("serialport: write: %w", io.ErrShortWrite)
		}
		p = p[n:]
	}
	if err := b.port.Drain(); err != nil {
		return fmt.Errorf("serialport: drain: %w", err)
	}
	return nil
}
