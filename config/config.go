// Package config loads the parameters of a simulation run from defaults, a
// YAML file, a .env file and CLOCKSIM_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/clocksim/node"
	"github.com/sarchlab/clocksim/simulation"
)

// EnvPrefix prefixes every environment variable read by LoadEnv.
const EnvPrefix = "CLOCKSIM_"

// Duration is a run duration. Configuration files may write it as a number of
// seconds ("60", "2.5") or as a Go duration ("1m30s").
type Duration time.Duration

// UnmarshalYAML decodes a scalar in either form.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}

	err := durationSetter((*time.Duration)(d))(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}

	return nil
}

// Config holds everything needed to build a simulation.
type Config struct {
	Duration    Duration      `yaml:"duration"`
	Nodes       int           `yaml:"nodes"`
	MaxTickRate int           `yaml:"max_tick_rate"`
	InternalMin int           `yaml:"internal_min"`
	InternalMax int           `yaml:"internal_max"`
	BasePort    int           `yaml:"base_port"`
	Host        string        `yaml:"host"`
	OutputDir   string        `yaml:"out"`
	Seed        int64         `yaml:"seed"`
	DB          string        `yaml:"db"`
	Monitor     bool          `yaml:"monitor"`
	MonitorPort int           `yaml:"monitor_port"`
	OpenBrowser bool          `yaml:"open_browser"`
	Verbose     bool          `yaml:"verbose"`
}

// Default returns the configuration of the classic three-machine experiment.
func Default() Config {
	return Config{
		Duration:    Duration(simulation.DefaultDuration),
		Nodes:       simulation.DefaultNodeCount,
		MaxTickRate: simulation.DefaultMaxTickRate,
		InternalMin: node.DefaultInternalMin,
		InternalMax: node.DefaultInternalMax,
		BasePort:    simulation.DefaultBasePort,
		Host:        simulation.DefaultHost,
		OutputDir:   simulation.DefaultOutputDir,
	}
}

// LoadFile overrides c with the fields present in a YAML file. Unknown fields
// are rejected.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	err = dec.Decode(c)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	return nil
}

// LoadEnv loads the given .env files, if they exist, and then overrides c
// with the CLOCKSIM_* environment variables. Variables that are already set
// take precedence over the .env files.
func (c *Config) LoadEnv(envFiles ...string) error {
	for _, f := range envFiles {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}

	for _, v := range c.envVars() {
		str, ok := os.LookupEnv(EnvPrefix + v.name)
		if !ok || str == "" {
			continue
		}

		err := v.set(str)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, v.name, err)
		}
	}

	return nil
}

type envVar struct {
	name string
	set  func(string) error
}

func (c *Config) envVars() []envVar {
	return []envVar{
		{"DURATION", durationSetter((*time.Duration)(&c.Duration))},
		{"NODES", intSetter(&c.Nodes)},
		{"MAX_TICK_RATE", intSetter(&c.MaxTickRate)},
		{"INTERNAL_MIN", intSetter(&c.InternalMin)},
		{"INTERNAL_MAX", intSetter(&c.InternalMax)},
		{"BASE_PORT", intSetter(&c.BasePort)},
		{"HOST", stringSetter(&c.Host)},
		{"OUT", stringSetter(&c.OutputDir)},
		{"SEED", int64Setter(&c.Seed)},
		{"DB", stringSetter(&c.DB)},
		{"MONITOR", boolSetter(&c.Monitor)},
		{"MONITOR_PORT", intSetter(&c.MonitorPort)},
		{"OPEN_BROWSER", boolSetter(&c.OpenBrowser)},
		{"VERBOSE", boolSetter(&c.Verbose)},
	}
}

func stringSetter(p *string) func(string) error {
	return func(s string) error {
		*p = s
		return nil
	}
}

func intSetter(p *int) func(string) error {
	return func(s string) error {
		v, err := strconv.Atoi(s)
		if err != nil {
			return err
		}

		*p = v

		return nil
	}
}

func int64Setter(p *int64) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}

		*p = v

		return nil
	}
}

func boolSetter(p *bool) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}

		*p = v

		return nil
	}
}

// durationSetter accepts Go durations ("90s") and plain seconds ("90").
func durationSetter(p *time.Duration) func(string) error {
	return func(s string) error {
		secs, err := strconv.ParseFloat(s, 64)
		if err == nil {
			*p = time.Duration(secs * float64(time.Second))
			return nil
		}

		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}

		*p = d

		return nil
	}
}

// Builder turns the configuration into a simulation builder.
func (c Config) Builder() simulation.Builder {
	b := simulation.MakeBuilder().
		WithDuration(time.Duration(c.Duration)).
		WithNodeCount(c.Nodes).
		WithMaxTickRate(c.MaxTickRate).
		WithInternalEventRange(c.InternalMin, c.InternalMax).
		WithBasePort(c.BasePort).
		WithHost(c.Host).
		WithOutputDir(c.OutputDir).
		WithSeed(c.Seed)

	if c.DB != "" {
		b = b.WithDataRecorder(c.DB)
	}

	if c.Monitor {
		b = b.WithMonitor(c.MonitorPort)
		if c.OpenBrowser {
			b = b.WithOpenBrowser()
		}
	}

	if c.Verbose {
		b = b.WithEventLogger(
			log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds))
	}

	return b
}
