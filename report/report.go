// Package report renders final aggregates and counters into a summary.
// Render is pure; callers decide where the text goes.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ecoledger/carbonet/collector"
	"github.com/ecoledger/carbonet/wire"
)

// Setup echoes the run configuration into the report.
type Setup struct {
	Topology wire.Topology
	Sensors  int
	Zones    int
	Period   time.Duration
	Duration time.Duration
}

type SensorStat struct {
	Sensor  uint32
	Count   uint32
	Average float64
	Total   float64
}

type RelayStat struct {
	Zone      uint32
	Received  uint32
	Forwarded uint32
}

type Report struct {
	Setup         Setup
	Sent          uint32
	Received      uint32
	DeliveryRatio float64 // percent
	Sensors       []SensorStat
	Relays        []RelayStat
	Elapsed       time.Duration
}

// Ratio is received/sent as percent; exactly 0 when nothing was sent.
func Ratio(sent, received uint32) float64 {
	if sent == 0 {
		return 0
	}
	return float64(received) / float64(sent) * 100
}

func Render(setup Setup, sent, received uint32, aggs map[uint32]collector.Aggregate, relays []RelayStat, elapsed time.Duration) *Report {
	rep := &Report{
		Setup:         setup,
		Sent:          sent,
		Received:      received,
		DeliveryRatio: Ratio(sent, received),
		Relays:        relays,
		Elapsed:       elapsed,
	}
	rep.Sensors = make([]SensorStat, 0, len(aggs))
	for id, a := range aggs {
		rep.Sensors = append(rep.Sensors, SensorStat{
			Sensor:  id,
			Count:   a.Count,
			Average: a.Average(),
			Total:   a.Sum,
		})
	}
	sort.Slice(rep.Sensors, func(i, j int) bool { return rep.Sensors[i].Sensor < rep.Sensors[j].Sensor })
	return rep
}

const hr = "================================================="

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", hr)
	fmt.Fprintf(&b, "CARBON TELEMETRY RESULTS\n")
	fmt.Fprintf(&b, "%s\n", hr)
	fmt.Fprintf(&b, "Topology: %s\n", r.Setup.Topology)
	fmt.Fprintf(&b, "Number of sensors: %d\n", r.Setup.Sensors)
	if r.Setup.Topology == wire.Hierarchical {
		fmt.Fprintf(&b, "Zones: %d\n", r.Setup.Zones)
	}
	fmt.Fprintf(&b, "Run time: %s\n", r.Setup.Duration)
	fmt.Fprintf(&b, "Total packets sent: %d\n", r.Sent)
	fmt.Fprintf(&b, "Total packets received: %d\n", r.Received)
	fmt.Fprintf(&b, "Packet delivery ratio: %.2f%%\n", r.DeliveryRatio)
	fmt.Fprintf(&b, "\nCO2 Statistics by Sensor:\n")
	fmt.Fprintf(&b, "-------------------------------------------------\n")
	for _, s := range r.Sensors {
		fmt.Fprintf(&b, "Sensor %d: %d readings, Average CO2 = %.2f ppm, Total = %.2f ppm\n",
			s.Sensor, s.Count, s.Average, s.Total)
	}
	if len(r.Relays) > 0 {
		fmt.Fprintf(&b, "\nRelay Counters by Zone:\n")
		fmt.Fprintf(&b, "-------------------------------------------------\n")
		for _, z := range r.Relays {
			fmt.Fprintf(&b, "Zone %d: received=%d forwarded=%d\n", z.Zone, z.Received, z.Forwarded)
		}
	}
	fmt.Fprintf(&b, "%s\n", hr)
	return b.String()
}
