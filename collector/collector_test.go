package collector_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoledger/carbonet/collector"
	"github.com/ecoledger/carbonet/log2"
	"github.com/ecoledger/carbonet/stat"
	"github.com/ecoledger/carbonet/transport"
	"github.com/ecoledger/carbonet/wire"
)

type tenv struct {
	m        *transport.Mock
	delivery *stat.Delivery
	col      *collector.Collector
	send     transport.Sender
}

func newEnv(t testing.TB, topo wire.Topology) *tenv {
	lg := log2.NewTest(t, log2.LDebug)
	env := &tenv{
		m:        transport.NewMock(lg),
		delivery: new(stat.Delivery),
	}
	env.col = collector.New(lg, topo, env.delivery, nil)
	require.NoError(t, env.col.Start(context.Background(), env.m, "gw"))
	var err error
	env.send, err = env.m.Open("gw")
	require.NoError(t, err)
	return env
}

func TestAggregateIdenticalReadings(t *testing.T) {
	t.Parallel()
	env := newEnv(t, wire.Hierarchical)

	const value = 512.25
	const n = 7
	payload := wire.Encode(wire.Reading{Sensor: 4, Group: 2, CO2: value}, wire.Hierarchical)
	for i := 0; i < n; i++ {
		require.True(t, env.send.Send(payload))
	}
	env.col.Stop()

	aggs := env.col.Aggregates()
	require.Len(t, aggs, 1)
	a := aggs[4]
	assert.Equal(t, uint32(n), a.Count)
	assert.Equal(t, value, a.Average(), "average of identical values must be exact")
	assert.Equal(t, value*n, a.Sum)

	_, received := env.delivery.Snapshot()
	assert.Equal(t, uint32(n), received)
}

func TestMalformedCountedButNotAggregated(t *testing.T) {
	t.Parallel()
	env := newEnv(t, wire.Flat)

	require.True(t, env.send.Send(wire.Encode(wire.Reading{Sensor: 1, Group: 1, CO2: 400, Time: 1}, wire.Flat)))
	require.True(t, env.send.Send([]byte("not a packet")))
	require.True(t, env.send.Send([]byte("SENSOR:2,COMPANY:1,CO2:oops,TIME:1")))
	env.col.Stop()

	_, received := env.delivery.Snapshot()
	assert.Equal(t, uint32(3), received, "malformed arrivals still count")

	aggs := env.col.Aggregates()
	require.Len(t, aggs, 1)
	assert.Equal(t, uint32(1), aggs[1].Count)
}

func TestLazyAggregateCreation(t *testing.T) {
	t.Parallel()
	env := newEnv(t, wire.Hierarchical)

	assert.Empty(t, env.col.Aggregates())
	for _, id := range []uint32{5, 9, 5} {
		require.True(t, env.send.Send(wire.Encode(wire.Reading{Sensor: id, Group: 1, CO2: 400}, wire.Hierarchical)))
	}
	env.col.Stop()

	assert.Equal(t, []uint32{5, 9}, env.col.SensorIDs())
	aggs := env.col.Aggregates()
	assert.Equal(t, uint32(2), aggs[5].Count)
	assert.Equal(t, uint32(1), aggs[9].Count)
}

func TestStopFreezesState(t *testing.T) {
	t.Parallel()
	env := newEnv(t, wire.Hierarchical)

	require.True(t, env.send.Send(wire.Encode(wire.Reading{Sensor: 1, Group: 1, CO2: 400}, wire.Hierarchical)))
	env.col.Stop()
	env.col.Stop() // idempotent

	// channel closed: arrival is lost, state unchanged
	assert.False(t, env.send.Send(wire.Encode(wire.Reading{Sensor: 1, Group: 1, CO2: 400}, wire.Hierarchical)))
	_, received := env.delivery.Snapshot()
	assert.Equal(t, uint32(1), received)
	assert.Equal(t, uint32(1), env.col.Aggregates()[1].Count)
}

func TestAverageEmpty(t *testing.T) {
	t.Parallel()
	var a collector.Aggregate
	assert.Equal(t, float64(0), a.Average())
}
