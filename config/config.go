// Package config reads carbonet HCL configuration with the include
// mechanism: a file may pull in others, loops and duplicates are errors.
package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"

	"github.com/ecoledger/carbonet/helpers"
	"github.com/ecoledger/carbonet/log2"
	"github.com/ecoledger/carbonet/wire"
)

const (
	defaultPeriod      = 5 * time.Second
	defaultDuration    = 50 * time.Second
	defaultStartOffset = 1 * time.Second
	defaultBaseCO2     = 400.0
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Scenario struct { //nolint:maligned
		Topology       string  `hcl:"topology"`
		Sensors        int     `hcl:"sensors"`
		Companies      int     `hcl:"companies"`
		Zones          int     `hcl:"zones"`
		SensorsPerZone int     `hcl:"sensors_per_zone"`
		PeriodMs       int     `hcl:"period_ms"`
		DurationMs     int     `hcl:"duration_ms"`
		StartOffsetMs  int     `hcl:"start_offset_ms"`
		StaggerMs      int     `hcl:"stagger_ms"`
		BaseCO2        float64 `hcl:"base_co2"`
		StepCO2        float64 `hcl:"step_co2"`
		ResultsFile    string  `hcl:"results_file"`
		LogDebug       bool    `hcl:"log_debug"`
	} `hcl:"scenario"`

	Mqtt struct {
		Enable       bool   `hcl:"enable"`
		Broker       string `hcl:"broker"`
		ClientID     string `hcl:"client_id"`
		Password     string `hcl:"password"` // secret
		TopicPrefix  string `hcl:"topic_prefix"`
		KeepaliveSec int    `hcl:"keepalive_sec"`
		LogDebug     bool   `hcl:"log_debug"`
	} `hcl:"mqtt"`

	Influx struct {
		Enable bool   `hcl:"enable"`
		URL    string `hcl:"url"`
		Token  string `hcl:"token"` // secret
		Org    string `hcl:"org"`
		Bucket string `hcl:"bucket"`
	} `hcl:"influx"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) Topology() (wire.Topology, error) {
	if c.Scenario.Topology == "" {
		return wire.Flat, nil
	}
	return wire.ParseTopology(c.Scenario.Topology)
}

func (c *Config) Period() time.Duration {
	return helpers.IntMillisecondDefault(c.Scenario.PeriodMs, defaultPeriod)
}

func (c *Config) Duration() time.Duration {
	return helpers.IntMillisecondDefault(c.Scenario.DurationMs, defaultDuration)
}

func (c *Config) StartOffset() time.Duration {
	return helpers.IntMillisecondDefault(c.Scenario.StartOffsetMs, defaultStartOffset)
}

func (c *Config) Stagger() time.Duration {
	// original deployments staggered flat starts by 500ms, hierarchical by 200ms
	def := 500 * time.Millisecond
	if topo, err := c.Topology(); err == nil && topo == wire.Hierarchical {
		def = 200 * time.Millisecond
	}
	return helpers.IntMillisecondDefault(c.Scenario.StaggerMs, def)
}

// BaselineCO2 returns the baseline for the i-th sensor, zero based.
func (c *Config) BaselineCO2(i int) float64 {
	base := c.Scenario.BaseCO2
	if base == 0 {
		base = defaultBaseCO2
	}
	step := c.Scenario.StepCO2
	if step == 0 {
		if topo, err := c.Topology(); err == nil && topo == wire.Hierarchical {
			step = 50
		} else {
			step = 100
		}
	}
	return base + float64(i)*step
}

// CompanyOf assigns the i-th sensor to a company, zero based input, ids from 1.
func (c *Config) CompanyOf(i int) uint32 {
	n := c.Scenario.Companies
	if n <= 0 {
		n = 3
	}
	return uint32(i%n) + 1
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		log.Fatalf("config duplicate source=%s", source.Name)
	} else {
		log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	}
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if source.Optional {
			return
		}
		err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
		*errs = append(*errs, err)
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

func (c *Config) validate(errs *[]error) {
	if c.Scenario.Sensors < 0 {
		*errs = append(*errs, errors.Errorf("config scenario.sensors=%d must not be negative", c.Scenario.Sensors))
	}
	if c.Scenario.SensorsPerZone < 0 {
		*errs = append(*errs, errors.Errorf("config scenario.sensors_per_zone=%d must not be negative", c.Scenario.SensorsPerZone))
	}
	if _, err := c.Topology(); err != nil {
		*errs = append(*errs, err)
	}
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	c.validate(&errs)
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
