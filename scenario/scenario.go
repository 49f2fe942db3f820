// Package scenario wires sensors, relays and the collector over a
// transport, runs the pipeline for the configured duration and returns
// the final report.
package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/atomic_clock"

	"github.com/ecoledger/carbonet/collector"
	"github.com/ecoledger/carbonet/config"
	"github.com/ecoledger/carbonet/log2"
	"github.com/ecoledger/carbonet/relay"
	"github.com/ecoledger/carbonet/report"
	"github.com/ecoledger/carbonet/sensor"
	"github.com/ecoledger/carbonet/sink"
	"github.com/ecoledger/carbonet/stat"
	"github.com/ecoledger/carbonet/transport"
	"github.com/ecoledger/carbonet/wire"
)

const (
	GatewayAddr = "gateway"

	defaultSensors        = 5
	defaultZones          = 5
	defaultSensorsPerZone = 2
)

func ZoneAddr(zone uint32) string { return fmt.Sprintf("zone%d", zone) }

// RunFlat runs the flat topology: sensors transmit straight to the
// central gateway.
func RunFlat(ctx context.Context, log *log2.Log, cfg *config.Config, net transport.Net) (*report.Report, error) {
	nSensors := cfg.Scenario.Sensors
	if nSensors == 0 {
		nSensors = defaultSensors
	}

	delivery := new(stat.Delivery)
	clock := atomic_clock.Now()

	sk, err := buildSink(log, cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	col := collector.New(log, wire.Flat, delivery, sk)
	if err := col.Start(ctx, net, GatewayAddr); err != nil {
		return nil, errors.Trace(err)
	}

	agents := make([]*sensor.Agent, 0, nSensors)
	for i := 0; i < nSensors; i++ {
		sender, err := net.Open(GatewayAddr)
		if err != nil {
			return nil, errors.Annotatef(err, "scenario sensor=%d open", i+1)
		}
		ag, err := sensor.New(log, sender, sensor.Options{
			ID:       uint32(i + 1),
			Group:    cfg.CompanyOf(i),
			Baseline: cfg.BaselineCO2(i),
			Period:   cfg.Period(),
			Topology: wire.Flat,
			Delivery: delivery,
			Clock:    clock,
		})
		if err != nil {
			return nil, errors.Trace(err)
		}
		agents = append(agents, ag)
	}

	runAgents(ctx, log, cfg, agents)
	for _, ag := range agents {
		ag.Stop()
	}
	col.Stop()

	sent, received := delivery.Snapshot()
	setup := report.Setup{
		Topology: wire.Flat,
		Sensors:  nSensors,
		Period:   cfg.Period(),
		Duration: cfg.Duration(),
	}
	return report.Render(setup, sent, received, col.Aggregates(), nil, atomic_clock.Since(clock)), nil
}

// RunHierarchical runs the two-tier topology: sensors transmit to their
// zone relay, relays forward to the central gateway.
func RunHierarchical(ctx context.Context, log *log2.Log, cfg *config.Config, net transport.Net) (*report.Report, error) {
	nZones := cfg.Scenario.Zones
	if nZones == 0 {
		nZones = defaultZones
	}
	perZone := cfg.Scenario.SensorsPerZone
	if perZone == 0 {
		perZone = defaultSensorsPerZone
	}
	nSensors := nZones * perZone

	delivery := new(stat.Delivery)
	clock := atomic_clock.Now()

	sk, err := buildSink(log, cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	col := collector.New(log, wire.Hierarchical, delivery, sk)
	if err := col.Start(ctx, net, GatewayAddr); err != nil {
		return nil, errors.Trace(err)
	}

	relays, err := StartRelays(log, net, nZones)
	if err != nil {
		return nil, errors.Trace(err)
	}

	agents := make([]*sensor.Agent, 0, nSensors)
	for i := 0; i < nSensors; i++ {
		zone := uint32(i/perZone) + 1
		sender, err := net.Open(ZoneAddr(zone))
		if err != nil {
			return nil, errors.Annotatef(err, "scenario sensor=%d open", i+1)
		}
		ag, err := sensor.New(log, sender, sensor.Options{
			ID:       uint32(i + 1),
			Group:    zone,
			Baseline: cfg.BaselineCO2(i),
			Period:   cfg.Period(),
			Topology: wire.Hierarchical,
			Delivery: delivery,
			Clock:    clock,
		})
		if err != nil {
			return nil, errors.Trace(err)
		}
		agents = append(agents, ag)
	}

	runAgents(ctx, log, cfg, agents)
	for _, ag := range agents {
		ag.Stop()
	}
	relayStats := make([]report.RelayStat, 0, len(relays))
	for _, rl := range relays {
		rl.Stop()
		received, forwarded := rl.Stat()
		relayStats = append(relayStats, report.RelayStat{Zone: rl.Zone(), Received: received, Forwarded: forwarded})
	}
	col.Stop()

	sent, received := delivery.Snapshot()
	setup := report.Setup{
		Topology: wire.Hierarchical,
		Sensors:  nSensors,
		Zones:    nZones,
		Period:   cfg.Period(),
		Duration: cfg.Duration(),
	}
	return report.Render(setup, sent, received, col.Aggregates(), relayStats, atomic_clock.Since(clock)), nil
}

// StartRelays binds one relay per zone, each forwarding to the gateway.
func StartRelays(log *log2.Log, net transport.Net, nZones int) ([]*relay.Relay, error) {
	relays := make([]*relay.Relay, 0, nZones)
	for z := 1; z <= nZones; z++ {
		out, err := net.Open(GatewayAddr)
		if err != nil {
			return nil, errors.Annotatef(err, "scenario relay zone=%d open", z)
		}
		rl := relay.New(log, uint32(z), out)
		if err := rl.Start(net, ZoneAddr(uint32(z))); err != nil {
			return nil, errors.Trace(err)
		}
		relays = append(relays, rl)
	}
	return relays, nil
}

// runAgents starts agents with staggered offsets, then waits out the run
// duration or context cancellation. Pending starts are cancelled first
// so no agent fires after the deadline.
func runAgents(ctx context.Context, log *log2.Log, cfg *config.Config, agents []*sensor.Agent) {
	offset := cfg.StartOffset()
	stagger := cfg.Stagger()

	timers := make([]*time.Timer, len(agents))
	for i, ag := range agents {
		ag := ag
		timers[i] = time.AfterFunc(offset+stagger*time.Duration(i), func() {
			if err := ag.Start(); err != nil {
				log.Errorf("scenario agent start err=%v", err)
			}
		})
	}

	select {
	case <-time.After(cfg.Duration()):
	case <-ctx.Done():
		log.Infof("scenario cancelled: %v", ctx.Err())
	}
	for _, tmr := range timers {
		tmr.Stop()
	}
}

func buildSink(log *log2.Log, cfg *config.Config) (sink.Sink, error) {
	if !cfg.Influx.Enable {
		return sink.NewNoop(), nil
	}
	return sink.NewInflux(log, sink.InfluxOptions{
		URL:    cfg.Influx.URL,
		Token:  cfg.Influx.Token,
		Org:    cfg.Influx.Org,
		Bucket: cfg.Influx.Bucket,
	})
}
