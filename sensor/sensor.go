// Package sensor emits periodic CO2 readings toward a configured
// destination. One Agent per simulated device.
package sensor

import (
	"math/rand"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/atomic_clock"

	"github.com/ecoledger/carbonet/helpers"
	"github.com/ecoledger/carbonet/log2"
	"github.com/ecoledger/carbonet/stat"
	"github.com/ecoledger/carbonet/transport"
	"github.com/ecoledger/carbonet/wire"
)

const (
	// Variation added to the baseline each reading, uniform over [-Jitter,+Jitter].
	Jitter = 50.0
	// Hard clamp bounds, ppm. Readings never leave this range.
	MinCO2 = 300.0
	MaxCO2 = 3000.0
)

type Options struct {
	ID       uint32
	Group    uint32 // company (flat) or zone (hierarchical)
	Baseline float64
	Period   time.Duration
	Topology wire.Topology
	Delivery *stat.Delivery
	// Clock marks run start; reading timestamps are micros since then.
	// nil means timestamps count from Agent construction.
	Clock *atomic_clock.Clock
}

// Agent generates a reading immediately on Start and then every Period
// until Stop. Transmit failures are logged and dropped, never retried.
type Agent struct {
	opt   Options
	log   *log2.Log
	dest  transport.Sender
	alive *alive.Alive
	rnd   *rand.Rand
}

func New(log *log2.Log, dest transport.Sender, opt Options) (*Agent, error) {
	if dest == nil {
		return nil, errors.Errorf("sensor: nil destination")
	}
	if opt.ID == 0 {
		return nil, errors.Errorf("sensor: id must be positive")
	}
	if opt.Group == 0 {
		return nil, errors.Errorf("sensor: group must be positive id=%d", opt.ID)
	}
	if opt.Period <= 0 {
		return nil, errors.Errorf("sensor: period must be positive id=%d", opt.ID)
	}
	if opt.Delivery == nil {
		return nil, errors.Errorf("sensor: nil delivery counters id=%d", opt.ID)
	}
	if opt.Clock == nil {
		opt.Clock = atomic_clock.Now()
	}
	return &Agent{
		opt:   opt,
		log:   log,
		dest:  dest,
		alive: alive.NewAlive(),
		rnd:   helpers.RandUnix(),
	}, nil
}

// Start begins periodic emission. Returns ErrClosed after Stop.
func (a *Agent) Start() error {
	if !a.alive.Add(1) {
		return errors.Annotatef(transport.ErrClosed, "sensor id=%d start", a.opt.ID)
	}
	a.log.Debugf("sensor id=%d group=%d baseline=%.0f started", a.opt.ID, a.opt.Group, a.opt.Baseline)
	go a.loop()
	return nil
}

// Stop cancels the pending emission and releases the transport handle.
// Blocks until the emit loop has exited; safe to call more than once.
func (a *Agent) Stop() {
	a.alive.Stop()
	a.alive.Wait()
	_ = a.dest.Close()
	a.log.Debugf("sensor id=%d stopped", a.opt.ID)
}

func (a *Agent) loop() {
	defer a.alive.Done()

	tmr := time.NewTimer(a.opt.Period)
	defer tmr.Stop()
	a.emit()
	for {
		select {
		case <-a.alive.StopChan():
			return
		case <-tmr.C:
			a.emit()
			tmr.Reset(a.opt.Period)
		}
	}
}

func (a *Agent) emit() {
	r := a.generate()
	b := wire.Encode(r, a.opt.Topology)
	if !a.dest.Send(b) {
		a.log.Errorf("sensor id=%d transmit failed, reading dropped", a.opt.ID)
		return
	}
	a.opt.Delivery.AddSent(1)
	a.log.Debugf("sensor id=%d sent co2=%.2f", a.opt.ID, r.CO2)
}

func (a *Agent) generate() wire.Reading {
	v := a.opt.Baseline + (a.rnd.Float64()*2-1)*Jitter
	if v < MinCO2 {
		v = MinCO2
	}
	if v > MaxCO2 {
		v = MaxCO2
	}
	r := wire.Reading{
		Sensor: a.opt.ID,
		Group:  a.opt.Group,
		CO2:    v,
	}
	if a.opt.Topology == wire.Flat {
		r.Time = uint64(atomic_clock.Since(a.opt.Clock).Microseconds())
	}
	return r
}
