// Package stat holds the delivery counters shared between sensor send
// paths and the collector receive path.
package stat

import "sync"

// Delivery counts packets for one collection run. Sent is incremented by
// each sensor on transmit success only; Received by the collector on
// every arrival, malformed included. Mutex because both sides do
// read-modify-write from their own goroutines.
type Delivery struct { //nolint:maligned
	sync.Mutex
	sent     uint32
	received uint32
}

func (d *Delivery) AddSent(n uint32) {
	d.Lock()
	d.sent += n
	d.Unlock()
}

func (d *Delivery) AddReceived(n uint32) {
	d.Lock()
	d.received += n
	d.Unlock()
}

func (d *Delivery) Snapshot() (sent, received uint32) {
	d.Lock()
	sent, received = d.sent, d.received
	d.Unlock()
	return sent, received
}
