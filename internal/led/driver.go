// Package led mirrors the panel ring onto a physical WS2812 strip, or onto
// the terminal when no SPI port is present.
package led

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/extra/devices/screen"
	"periph.io/x/host/v3"
)

// Driver abstracts an LED output sink.
type Driver interface {
	// Write pushes an RGB frame to hardware. len(rgb) must be 3*N.
	Write(rgb []byte) error
	// Close releases resources.
	Close() error
}

var ErrFrameSize = errors.New("rgb length does not match LED count")

// Names accepted by Open.
const (
	Sim    = "sim"
	SPI    = "spi"
	Screen = "screen"
)

// Options select and size a driver.
type Options struct {
	Kind  string
	Count int
	// Port is the SPI port name; empty picks the first one registered.
	Port string
	// Freq is the SPI clock; zero uses DefaultFreq.
	Freq physic.Frequency
}

// nrzRate is the WS2812 bit rate in kHz. nrzled encodes each bit as three SPI
// bits, plus headroom.
const nrzRate = 800

// DefaultFreq is the SPI clock nrzled expects for WS2812 strips.
const DefaultFreq = (nrzRate*3 + 100) * physic.KiloHertz

// Open builds the driver named by opts.Kind. An SPI driver falls back to the
// terminal screen when no port can be opened.
func Open(opts Options, log zerolog.Logger) (Driver, string, error) {
	if opts.Count <= 0 {
		return nil, "", fmt.Errorf("invalid LED count: %d", opts.Count)
	}
	switch opts.Kind {
	case "", Sim:
		return NewSim(opts.Count, log), Sim, nil
	case Screen:
		return NewScreen(opts.Count), Screen, nil
	case SPI:
		d, err := NewSPI(opts)
		if err != nil {
			log.Warn().Err(err).Msg("no SPI port, printing at the console")
			return NewScreen(opts.Count), Screen, nil
		}
		return d, SPI, nil
	default:
		return nil, "", fmt.Errorf("unknown driver %q", opts.Kind)
	}
}

// Display drives any periph display.Drawer with a 1xN strip image.
type Display struct {
	mu     sync.Mutex
	drawer display.Drawer
	closer func() error
	img    *image.NRGBA
}

// NewDisplay wraps a drawer. closer may be nil.
func NewDisplay(d display.Drawer, count int, closer func() error) *Display {
	return &Display{
		drawer: d,
		closer: closer,
		img:    image.NewNRGBA(image.Rect(0, 0, count, 1)),
	}
}

// NewSPI opens a WS2812 chain over SPI.
func NewSPI(opts Options) (*Display, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	port, err := spireg.Open(opts.Port)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", opts.Port, err)
	}
	d, err := newNRZ(port, opts)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return NewDisplay(d, opts.Count, func() error {
		herr := d.Halt()
		return errors.Join(herr, port.Close())
	}), nil
}

func newNRZ(port spi.Port, opts Options) (*nrzled.Dev, error) {
	freq := opts.Freq
	if freq == 0 {
		freq = DefaultFreq
	}
	d, err := nrzled.NewSPI(port, &nrzled.Opts{NumPixels: opts.Count, Channels: 3, Freq: freq})
	if err != nil {
		return nil, fmt.Errorf("nrzled: %w", err)
	}
	if err := d.Halt(); err != nil {
		return nil, fmt.Errorf("nrzled halt: %w", err)
	}
	return d, nil
}

// NewScreen prints the strip as ANSI colored blocks.
func NewScreen(count int) *Display {
	return NewDisplay(screen.New(count), count, nil)
}

func (d *Display) Write(rgb []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.img.Rect.Dx()
	if len(rgb) != n*3 {
		return fmt.Errorf("%w: %d bytes for %d LEDs", ErrFrameSize, len(rgb), n)
	}
	for i := 0; i < n; i++ {
		d.img.SetNRGBA(i, 0, color.NRGBA{R: rgb[i*3], G: rgb[i*3+1], B: rgb[i*3+2], A: 255})
	}
	return d.drawer.Draw(d.drawer.Bounds(), d.img, image.Point{})
}

func (d *Display) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closer == nil {
		return nil
	}
	err := d.closer()
	d.closer = nil
	return err
}

// SimDriver keeps the last frame and logs a compact summary of each one.
type SimDriver struct {
	mu     sync.Mutex
	log    zerolog.Logger
	count  int
	frames int
	last   []byte
}

func NewSim(count int, log zerolog.Logger) *SimDriver {
	return &SimDriver{log: log, count: count}
}

func (d *SimDriver) Write(rgb []byte) error {
	if len(rgb) != d.count*3 {
		return fmt.Errorf("%w: %d bytes for %d LEDs", ErrFrameSize, len(rgb), d.count)
	}
	d.mu.Lock()
	d.frames++
	d.last = append(d.last[:0], rgb...)
	frames := d.frames
	d.mu.Unlock()

	if e := d.log.Trace(); e.Enabled() {
		var r, g, b float64
		for i := 0; i+2 < len(rgb); i += 3 {
			r += float64(rgb[i])
			g += float64(rgb[i+1])
			b += float64(rgb[i+2])
		}
		n := float64(d.count)
		e.Int("frame", frames).
			Str("avg", fmt.Sprintf("(%.1f,%.1f,%.1f)", r/n, g/n, b/n)).
			Float64("amps", EstimateCurrent(rgb)).
			Msg("led frame")
	}
	return nil
}

// Last returns a copy of the most recent frame.
func (d *SimDriver) Last() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.last...)
}

// Frames is the number of frames written.
func (d *SimDriver) Frames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

func (d *SimDriver) Close() error { return nil }
