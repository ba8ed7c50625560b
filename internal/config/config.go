package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Log struct {
	Level  string `yaml:"level"`  // zerolog level name
	Format string `yaml:"format"` // "console" | "json"
}

type Ring struct {
	NumPanels           int     `yaml:"num_panels" json:"num_panels"`
	Diameter            float64 `yaml:"diameter" json:"diameter"`
	Height              float64 `yaml:"height" json:"height"`
	PoleDiameter        float64 `yaml:"pole_diameter" json:"pole_diameter"`
	FootDiameter        float64 `yaml:"foot_diameter" json:"foot_diameter"`
	ButtonPolesDiameter float64 `yaml:"button_poles_diameter" json:"button_poles_diameter"`
}

type Chart struct {
	MaxPoints  int      `yaml:"max_points"`
	Algorithms []string `yaml:"algorithms"`
}

type PowerCfg struct {
	LimitAmps float64 `yaml:"limit_amps"`
	WhiteCap  float64 `yaml:"white_cap"`
	Luminance int     `yaml:"luminance"`
}

type SPI struct {
	Port    string `yaml:"port"`     // periph port name, e.g. "/dev/spidev0.0"
	SpeedHz int    `yaml:"speed_hz"` // 0 uses the 2.5MHz WS2812 clock
}

type Stream struct {
	URL string `yaml:"url"` // ws://host:port/events; empty browses mDNS
	// Service is the mDNS service browsed when URL is empty.
	Service string `yaml:"service"`
	// Retry is the reconnect delay; zero gives up after the first drop.
	Retry time.Duration `yaml:"retry"`
}

type Config struct {
	Addr      string `yaml:"addr"`
	FPS       int    `yaml:"fps"`
	Driver    string `yaml:"driver"` // "sim" | "spi" | "screen"
	Element   string `yaml:"element"`
	Advertise bool   `yaml:"advertise"`

	Log    Log      `yaml:"log"`
	Ring   Ring     `yaml:"ring"`
	Chart  Chart    `yaml:"chart"`
	Power  PowerCfg `yaml:"power"`
	SPI    SPI      `yaml:"spi,omitempty"`
	Stream Stream   `yaml:"stream"`
}

func Default() *Config {
	return &Config{
		Addr:    ":8080",
		FPS:     60,
		Driver:  "sim",
		Element: "pixels",
		Log:     Log{Level: "info", Format: "console"},
		Ring:    Ring{NumPanels: 10, Diameter: 20, Height: 0.4},
		Chart:   Chart{MaxPoints: 100, Algorithms: []string{"raw", "combined"}},
		Power:   PowerCfg{LimitAmps: 35, WhiteCap: 0.85, Luminance: 255},
		Stream:  Stream{Service: "_octopus._tcp", Retry: 2 * time.Second},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if err := LoadInto(path, c); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadInto overlays the keys present in path onto c, so values from flags
// survive unless the file sets them. A missing file leaves c unchanged.
func LoadInto(path string, c *Config) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c.Validate()
	}
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

func (c *Config) Validate() error {
	switch {
	case c.FPS <= 0:
		return fmt.Errorf("fps must be positive, got %d", c.FPS)
	case c.Ring.NumPanels <= 0:
		return fmt.Errorf("ring.num_panels must be positive, got %d", c.Ring.NumPanels)
	case c.Chart.MaxPoints <= 0:
		return fmt.Errorf("chart.max_points must be positive, got %d", c.Chart.MaxPoints)
	case c.Power.Luminance < 1 || c.Power.Luminance > 255:
		return fmt.Errorf("power.luminance must be 1..255, got %d", c.Power.Luminance)
	}
	return nil
}
