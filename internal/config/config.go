// Package config loads the heater-share YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/heater-share/internal/gpio"
	"github.com/sweeney/heater-share/internal/group"
	"github.com/sweeney/heater-share/internal/mqtt"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

// Heater output kinds.
const (
	OutputGPIO = "gpio"
	OutputMQTT = "mqtt"
)

// Config is the whole configuration file.
type Config struct {
	MQTT      MQTT          `yaml:"mqtt"`
	HTTP      string        `yaml:"http"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	GPIO      GPIO          `yaml:"gpio"`
	Heaters   []Heater      `yaml:"heaters"`
	Groups    []Group       `yaml:"groups"`
}

// MQTT configures the broker connection.
type MQTT struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id,omitempty"`
	TopicPrefix string `yaml:"topic_prefix"`
	BufferSize  int    `yaml:"buffer_size"`
}

// GPIO configures local heater outputs.
type GPIO struct {
	Chip      string        `yaml:"chip"`
	PWMPeriod time.Duration `yaml:"pwm_period"`
}

// Heater is one heater output. ShareGroup places it in a power-sharing
// group; the group is created with defaults if it has no section of its own.
type Heater struct {
	Name       string `yaml:"name"`
	Output     string `yaml:"output"`
	Pin        *int   `yaml:"pin,omitempty"`
	ShareGroup string `yaml:"share_group,omitempty"`
}

// Group is a group section. Times are in seconds.
type Group struct {
	Name           string   `yaml:"name"`
	CycleTime      *float64 `yaml:"cycle_time,omitempty"`
	MaxActive      *int     `yaml:"max_active,omitempty"`
	IsBed          bool     `yaml:"is_bed,omitempty"`
	SwitchingDelay *float64 `yaml:"switching_delay,omitempty"`
	MinOnTime      float64  `yaml:"min_on_time,omitempty"`
	Mode           string   `yaml:"mode,omitempty"`
	Shuffle        bool     `yaml:"shuffle,omitempty"`
	Heaters        []string `yaml:"heaters,omitempty"`
}

// Default returns the configuration used for anything the file leaves out.
func Default() Config {
	return Config{
		MQTT: MQTT{
			Broker:      "tcp://192.168.1.200:1883",
			TopicPrefix: mqtt.DefaultPrefix,
			BufferSize:  mqtt.DefaultBufferSize,
		},
		HTTP:      ":80",
		Heartbeat: 15 * time.Minute,
		GPIO: GPIO{
			Chip:      gpio.DefaultChip,
			PWMPeriod: gpio.DefaultPWMPeriod,
		},
	}
}

// Load reads and validates the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks heaters and groups. Group parameters are checked by
// Specs, which applies the defaults first.
func (c Config) Validate() error {
	if c.GPIO.PWMPeriod <= 0 {
		return fmt.Errorf("%w: gpio pwm_period must be > 0", ErrInvalid)
	}

	heaters := make(map[string]bool, len(c.Heaters))
	for i, h := range c.Heaters {
		if h.Name == "" {
			return fmt.Errorf("%w: heater %d has no name", ErrInvalid, i)
		}
		if heaters[h.Name] {
			return fmt.Errorf("%w: duplicate heater %s", ErrInvalid, h.Name)
		}
		heaters[h.Name] = true

		switch h.OutputKind() {
		case OutputGPIO:
			if h.Pin == nil || *h.Pin < 0 {
				return fmt.Errorf("%w: heater %s: gpio output needs a pin", ErrInvalid, h.Name)
			}
		case OutputMQTT:
		default:
			return fmt.Errorf("%w: heater %s: unknown output %q", ErrInvalid, h.Name, h.Output)
		}
	}

	groups := make(map[string]bool, len(c.Groups))
	for i, g := range c.Groups {
		if g.Name == "" {
			return fmt.Errorf("%w: group %d has no name", ErrInvalid, i)
		}
		if groups[g.Name] {
			return fmt.Errorf("%w: duplicate group %s", ErrInvalid, g.Name)
		}
		groups[g.Name] = true
	}
	return nil
}

// OutputKind returns the output type, defaulting to gpio.
func (h Heater) OutputKind() string {
	if h.Output == "" {
		return OutputGPIO
	}
	return h.Output
}

// Specs converts the group sections and share_group references into group
// specs, in file order: sections first, then groups only named by heaters.
// Membership is the group's own list followed by heaters that name it.
// A section with invalid parameters is left out, along with the heaters
// that name it, and reported in the joined error; the other specs are
// still returned.
func (c Config) Specs() ([]group.Spec, error) {
	var specs []group.Spec
	var errs []error
	index := make(map[string]int)
	broken := make(map[string]bool)

	for _, g := range c.Groups {
		cfg, err := g.groupConfig()
		if err != nil {
			broken[g.Name] = true
			errs = append(errs, err)
			continue
		}
		index[g.Name] = len(specs)
		specs = append(specs, group.Spec{Name: g.Name, Config: cfg})
	}

	for _, h := range c.Heaters {
		if h.ShareGroup == "" || broken[h.ShareGroup] {
			continue
		}
		i, ok := index[h.ShareGroup]
		if !ok {
			i = len(specs)
			index[h.ShareGroup] = i
			specs = append(specs, group.Spec{Name: h.ShareGroup, Config: group.DefaultConfig()})
		}
		if !slices.Contains(specs[i].Config.Heaters, h.Name) {
			specs[i].Config.Heaters = append(specs[i].Config.Heaters, h.Name)
		}
	}
	return specs, errors.Join(errs...)
}

func (g Group) groupConfig() (group.Config, error) {
	cfg := group.DefaultConfig()
	if g.CycleTime != nil {
		cfg.CycleTime = seconds(*g.CycleTime)
	}
	if g.MaxActive != nil {
		cfg.MaxActive = *g.MaxActive
	}
	if g.SwitchingDelay != nil {
		cfg.SwitchDelay = seconds(*g.SwitchingDelay)
	}
	cfg.MinOnTime = seconds(g.MinOnTime)
	cfg.IsBed = g.IsBed
	cfg.Shuffle = g.Shuffle
	if g.Mode != "" {
		cfg.Mode = group.Mode(g.Mode)
	}
	cfg.Heaters = append([]string(nil), g.Heaters...)

	if err := cfg.Validate(); err != nil {
		return group.Config{}, fmt.Errorf("%w: group %s: %w", ErrInvalid, g.Name, err)
	}
	return cfg, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
