package scenario_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoledger/carbonet/config"
	"github.com/ecoledger/carbonet/log2"
	"github.com/ecoledger/carbonet/scenario"
	"github.com/ecoledger/carbonet/sensor"
	"github.com/ecoledger/carbonet/transport"
	"github.com/ecoledger/carbonet/wire"
)

// scaled-down timings so a full run fits in a test
func testConfig(t testing.TB, source string) *config.Config {
	t.Helper()
	lg := log2.NewTest(t, log2.LDebug)
	fs := config.NewMockFullReader(map[string]string{"test.hcl": source})
	return config.MustReadConfig(lg, fs, "test.hcl")
}

func TestRunFlat(t *testing.T) {
	t.Parallel()
	lg := log2.NewTest(t, log2.LDebug)
	cfg := testConfig(t, `scenario {
  sensors = 5
  period_ms = 20
  duration_ms = 150
  start_offset_ms = 1
  stagger_ms = 1
}`)
	net := transport.NewMock(lg)
	defer net.Close()

	rep, err := scenario.RunFlat(context.Background(), lg, cfg, net)
	require.NoError(t, err)

	assert.Equal(t, wire.Flat, rep.Setup.Topology)
	assert.Equal(t, 5, rep.Setup.Sensors)

	// lossless transport: every sent packet arrives
	assert.Equal(t, rep.Sent, rep.Received)
	assert.InDelta(t, 100.0, rep.DeliveryRatio, 0.001)

	require.Len(t, rep.Sensors, 5)
	// immediate emission plus one per full period, at most
	maxCount := uint32(cfg.Duration()/cfg.Period()) + 2
	total := uint32(0)
	for i, s := range rep.Sensors {
		assert.Equal(t, uint32(i+1), s.Sensor)
		assert.True(t, s.Count >= 1, "sensor %d emitted nothing", s.Sensor)
		assert.True(t, s.Count <= maxCount, "sensor %d count=%d over schedule", s.Sensor, s.Count)
		base := cfg.BaselineCO2(i)
		assert.InDelta(t, base, s.Average, sensor.Jitter, "sensor %d average out of range", s.Sensor)
		assert.True(t, s.Average >= sensor.MinCO2)
		total += s.Count
	}
	assert.Equal(t, rep.Received, total)
	assert.Empty(t, rep.Relays)
}

func TestRunHierarchicalLossless(t *testing.T) {
	t.Parallel()
	lg := log2.NewTest(t, log2.LDebug)
	cfg := testConfig(t, `scenario {
  topology = "hierarchical"
  zones = 3
  sensors_per_zone = 2
  period_ms = 20
  duration_ms = 150
  start_offset_ms = 1
  stagger_ms = 1
}`)
	net := transport.NewMock(lg)
	defer net.Close()

	rep, err := scenario.RunHierarchical(context.Background(), lg, cfg, net)
	require.NoError(t, err)

	assert.Equal(t, wire.Hierarchical, rep.Setup.Topology)
	assert.Equal(t, 6, rep.Setup.Sensors)
	assert.Equal(t, 3, rep.Setup.Zones)
	require.Len(t, rep.Relays, 3)
	require.Len(t, rep.Sensors, 6)

	var relayReceived, relayForwarded uint32
	for i, z := range rep.Relays {
		assert.Equal(t, uint32(i+1), z.Zone)
		assert.Equal(t, z.Received, z.Forwarded)
		relayReceived += z.Received
		relayForwarded += z.Forwarded
	}
	assert.Equal(t, rep.Sent, relayReceived)
	assert.Equal(t, rep.Received, relayForwarded)
	assert.InDelta(t, 100.0, rep.DeliveryRatio, 0.001)
}

func TestRunHierarchicalForwardLoss(t *testing.T) {
	t.Parallel()
	lg := log2.NewTest(t, log2.LDebug)
	cfg := testConfig(t, `scenario {
  topology = "hierarchical"
  zones = 2
  sensors_per_zone = 2
  period_ms = 20
  duration_ms = 150
  start_offset_ms = 1
  stagger_ms = 1
}`)
	net := transport.NewMock(lg)
	defer net.Close()

	// one relay-to-gateway transmission fails, packet is gone for good
	net.FailNext(scenario.GatewayAddr, 1)

	rep, err := scenario.RunHierarchical(context.Background(), lg, cfg, net)
	require.NoError(t, err)

	var relayReceived, relayForwarded uint32
	for _, z := range rep.Relays {
		relayReceived += z.Received
		relayForwarded += z.Forwarded
	}
	require.True(t, relayReceived >= 1)
	assert.Equal(t, relayReceived-1, relayForwarded)
	assert.Equal(t, relayForwarded, rep.Received)
	assert.Equal(t, relayReceived, rep.Sent)
	assert.True(t, rep.DeliveryRatio < 100.0)
}

func TestZoneAddr(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "zone1", scenario.ZoneAddr(1))
	assert.Equal(t, "zone12", scenario.ZoneAddr(12))
}
