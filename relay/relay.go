// Package relay implements the zone access point of the hierarchical
// topology: a pass-through node between sensors and the central gateway.
package relay

import (
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/ecoledger/carbonet/log2"
	"github.com/ecoledger/carbonet/transport"
)

// Stat is the per-relay counter pair. Forwarded never exceeds Received.
type Stat struct {
	sync.Mutex
	received  uint32
	forwarded uint32
}

func (s *Stat) Snapshot() (received, forwarded uint32) {
	s.Lock()
	received, forwarded = s.received, s.forwarded
	s.Unlock()
	return received, forwarded
}

// Relay forwards each inbound packet, same bytes and no inspection,
// toward the gateway. No queue: packets are handled one at a time and a
// forwarding failure is dropped silently, visible only as the gap
// between received and forwarded.
type Relay struct {
	log     *log2.Log
	zone    uint32
	out     transport.Sender
	binding transport.Binding
	alive   *alive.Alive
	stat    Stat
}

func New(log *log2.Log, zone uint32, out transport.Sender) *Relay {
	return &Relay{
		log:   log,
		zone:  zone,
		out:   out,
		alive: alive.NewAlive(),
	}
}

// Start binds the inbound channel. Fatal on bind failure per the
// startup resource rule: the caller decides, we just return the error.
func (r *Relay) Start(net transport.Net, addr string) error {
	b, err := net.Bind(addr, r.onPacket)
	if err != nil {
		return errors.Annotatef(err, "relay zone=%d bind addr=%s", r.zone, addr)
	}
	r.binding = b
	r.log.Debugf("relay zone=%d listening addr=%s", r.zone, addr)
	return nil
}

// Stop closes both channels and reports final counters. Idempotent.
func (r *Relay) Stop() {
	if !r.alive.IsRunning() {
		return
	}
	r.alive.Stop()
	r.alive.Wait()
	if r.binding != nil {
		_ = r.binding.Close()
	}
	_ = r.out.Close()
	received, forwarded := r.stat.Snapshot()
	r.log.Infof("relay zone=%d received=%d forwarded=%d", r.zone, received, forwarded)
}

func (r *Relay) Stat() (received, forwarded uint32) { return r.stat.Snapshot() }

func (r *Relay) Zone() uint32 { return r.zone }

func (r *Relay) onPacket(payload []byte) {
	if !r.alive.Add(1) {
		return
	}
	defer r.alive.Done()

	r.stat.Lock()
	r.stat.received++
	r.stat.Unlock()

	if !r.out.Send(payload) {
		r.log.Debugf("relay zone=%d forward failed, packet dropped", r.zone)
		return
	}
	r.stat.Lock()
	r.stat.forwarded++
	r.stat.Unlock()
}
