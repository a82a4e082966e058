package solver

import (
	"math"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Flags toggles optional solver features.
type Flags uint8

const (
	// FlagConstraints applies node constraints while solving.
	FlagConstraints Flags = 1 << iota
	// FlagJointRotations updates node rotations to follow their segments.
	FlagJointRotations
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagConstraints, "constraints"},
	{FlagJointRotations, "joint-rotations"},
}

// Has reports whether every flag in g is set.
func (f Flags) Has(g Flags) bool { return f&g == g }

func (f Flags) String() string {
	return strings.Join(f.names(), "|")
}

func (f Flags) names() []string {
	names := []string{}
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return names
}

// ParseFlag returns the flag with the given name.
func ParseFlag(name string) (Flags, error) {
	for _, fn := range flagNames {
		if fn.name == name {
			return fn.flag, nil
		}
	}
	return 0, errors.Errorf("unknown flag %q", name)
}

// MarshalYAML encodes flags as a list of names.
func (f Flags) MarshalYAML() (any, error) {
	return f.names(), nil
}

// UnmarshalYAML decodes a list of flag names.
func (f *Flags) UnmarshalYAML(value *yaml.Node) error {
	var names []string
	if err := value.Decode(&names); err != nil {
		return errors.Wrap(err, "flags")
	}
	var out Flags
	for _, name := range names {
		flag, err := ParseFlag(name)
		if err != nil {
			return err
		}
		out |= flag
	}
	*f = out
	return nil
}

// Space is the coordinate space node poses are stored in between solves.
type Space int

const (
	// SpaceLocal stores every node relative to its parent.
	SpaceLocal Space = iota
	// SpaceGlobal stores every node in the root's frame.
	SpaceGlobal
)

func (s Space) String() string {
	switch s {
	case SpaceLocal:
		return "local"
	case SpaceGlobal:
		return "global"
	default:
		return "unknown"
	}
}

// ParseSpace parses "local" or "global".
func ParseSpace(text string) (Space, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "local", "":
		return SpaceLocal, nil
	case "global":
		return SpaceGlobal, nil
	}
	return 0, errors.Errorf("unknown space %q", text)
}

func (s Space) MarshalYAML() (any, error) {
	return s.String(), nil
}

func (s *Space) UnmarshalYAML(value *yaml.Node) error {
	sp, err := ParseSpace(value.Value)
	if err != nil {
		return err
	}
	*s = sp
	return nil
}

// Config controls a solve. It may be changed between solves without
// rebuilding.
type Config struct {
	MaxIterations int     `yaml:"max_iterations"`
	Tolerance     float64 `yaml:"tolerance"`
	Flags         Flags   `yaml:"flags"`
	Space         Space   `yaml:"space"`
}

// DefaultConfig returns 20 iterations, a tolerance of 1e-3, constraints and
// joint rotations enabled, and local-space storage.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 20,
		Tolerance:     1e-3,
		Flags:         FlagConstraints | FlagJointRotations,
		Space:         SpaceLocal,
	}
}

// Validate checks the config's ranges.
func (c Config) Validate() error {
	if c.MaxIterations <= 0 {
		return errors.Errorf("max iterations must be positive, got %d", c.MaxIterations)
	}
	if !(c.Tolerance > 0) || math.IsInf(c.Tolerance, 0) {
		return errors.Errorf("tolerance must be positive and finite, got %v", c.Tolerance)
	}
	if c.Space != SpaceLocal && c.Space != SpaceGlobal {
		return errors.Errorf("invalid space %d", int(c.Space))
	}
	return nil
}

// ParseConfig decodes YAML on top of DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse solver config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read solver config")
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "%s", path)
	}
	return cfg, nil
}
