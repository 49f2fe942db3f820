// Package collector terminates the telemetry flow: decode, aggregate,
// count. One Collector per collection run owns all mutable state;
// nothing escapes it except counter and aggregate snapshots.
package collector

import (
	"context"
	"sort"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/ecoledger/carbonet/log2"
	"github.com/ecoledger/carbonet/sink"
	"github.com/ecoledger/carbonet/stat"
	"github.com/ecoledger/carbonet/transport"
	"github.com/ecoledger/carbonet/wire"
)

// Aggregate is the running per-sensor record. Sum and Count only grow.
type Aggregate struct {
	Sum   float64
	Count uint32
}

func (a Aggregate) Average() float64 {
	if a.Count == 0 {
		return 0
	}
	return a.Sum / float64(a.Count)
}

type Collector struct {
	log      *log2.Log
	topo     wire.Topology
	delivery *stat.Delivery
	sk       sink.Sink
	alive    *alive.Alive
	binding  transport.Binding
	ctx      context.Context

	mu  sync.Mutex
	agg map[uint32]Aggregate
}

func New(log *log2.Log, topo wire.Topology, delivery *stat.Delivery, sk sink.Sink) *Collector {
	if sk == nil {
		sk = sink.NewNoop()
	}
	return &Collector{
		log:      log,
		topo:     topo,
		delivery: delivery,
		sk:       sk,
		alive:    alive.NewAlive(),
		agg:      make(map[uint32]Aggregate),
	}
}

// Start binds the inbound channel and registers the receive handler.
func (c *Collector) Start(ctx context.Context, net transport.Net, addr string) error {
	c.ctx = ctx
	b, err := net.Bind(addr, c.onPacket)
	if err != nil {
		return errors.Annotatef(err, "collector bind addr=%s", addr)
	}
	c.binding = b
	c.log.Infof("collector listening addr=%s topology=%s", addr, c.topo)
	return nil
}

// Stop closes the inbound channel and freezes the aggregates. Idempotent.
func (c *Collector) Stop() {
	if !c.alive.IsRunning() {
		return
	}
	c.alive.Stop()
	c.alive.Wait()
	if c.binding != nil {
		_ = c.binding.Close()
	}
	c.sk.Close()
	sent, received := c.delivery.Snapshot()
	c.log.Infof("collector stopped sent=%d received=%d sensors=%d", sent, received, len(c.Aggregates()))
}

// Aggregates returns a copy of the per-sensor records.
func (c *Collector) Aggregates() map[uint32]Aggregate {
	c.mu.Lock()
	out := make(map[uint32]Aggregate, len(c.agg))
	for id, a := range c.agg {
		out[id] = a
	}
	c.mu.Unlock()
	return out
}

// SensorIDs returns aggregate keys in ascending order.
func (c *Collector) SensorIDs() []uint32 {
	c.mu.Lock()
	ids := make([]uint32, 0, len(c.agg))
	for id := range c.agg {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c *Collector) Delivery() *stat.Delivery { return c.delivery }

func (c *Collector) onPacket(payload []byte) {
	if !c.alive.Add(1) {
		return
	}
	defer c.alive.Done()

	// every arrival counts, malformed included
	c.delivery.AddReceived(1)

	r, err := wire.Decode(payload, c.topo)
	if err != nil {
		c.log.Errorf("collector drop payload=%q err=%v", payload, err)
		return
	}

	c.mu.Lock()
	a := c.agg[r.Sensor]
	a.Sum += r.CO2
	a.Count++
	c.agg[r.Sensor] = a
	c.mu.Unlock()

	c.log.Debugf("collector sensor=%d group=%d co2=%.2f", r.Sensor, r.Group, r.CO2)

	if err := c.sk.Put(c.ctx, r, c.topo); err != nil {
		c.log.Errorf("collector sink err=%v", err)
	}
}
