package sensor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoledger/carbonet/log2"
	"github.com/ecoledger/carbonet/sensor"
	"github.com/ecoledger/carbonet/stat"
	"github.com/ecoledger/carbonet/transport"
	"github.com/ecoledger/carbonet/wire"
)

func testAgent(t testing.TB, m *transport.Mock, opt sensor.Options) *sensor.Agent {
	sender, err := m.Open("gw")
	require.NoError(t, err)
	if opt.ID == 0 {
		opt.ID = 1
	}
	if opt.Group == 0 {
		opt.Group = 1
	}
	if opt.Baseline == 0 {
		opt.Baseline = 400
	}
	if opt.Period == 0 {
		opt.Period = 10 * time.Millisecond
	}
	if opt.Delivery == nil {
		opt.Delivery = new(stat.Delivery)
	}
	ag, err := sensor.New(log2.NewTest(t, log2.LDebug), sender, opt)
	require.NoError(t, err)
	return ag
}

func TestGeneratedValuesWithinBounds(t *testing.T) {
	t.Parallel()
	lg := log2.NewTest(t, log2.LDebug)
	m := transport.NewMock(lg)

	var readings []wire.Reading
	_, err := m.Bind("gw", func(p []byte) {
		r, err := wire.Decode(p, wire.Flat)
		require.NoError(t, err)
		readings = append(readings, r)
	})
	require.NoError(t, err)

	const baseline = 700.0
	delivery := new(stat.Delivery)
	ag := testAgent(t, m, sensor.Options{ID: 3, Group: 2, Baseline: baseline, Period: time.Millisecond, Delivery: delivery})
	require.NoError(t, ag.Start())
	time.Sleep(50 * time.Millisecond)
	ag.Stop()

	require.NotEmpty(t, readings)
	for _, r := range readings {
		assert.Equal(t, uint32(3), r.Sensor)
		assert.Equal(t, uint32(2), r.Group)
		assert.GreaterOrEqual(t, r.CO2, baseline-sensor.Jitter)
		assert.LessOrEqual(t, r.CO2, baseline+sensor.Jitter)
	}
	sent, _ := delivery.Snapshot()
	assert.Equal(t, uint32(len(readings)), sent)
}

func TestClampBounds(t *testing.T) {
	t.Parallel()
	lg := log2.NewTest(t, log2.LDebug)

	cases := []struct {
		name     string
		baseline float64
	}{
		{"low", 310},   // baseline-50 would fall under 300
		{"high", 2990}, // baseline+50 would exceed 3000
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			m := transport.NewMock(lg)
			var readings []wire.Reading
			_, err := m.Bind("gw", func(p []byte) {
				r, err := wire.Decode(p, wire.Flat)
				require.NoError(t, err)
				readings = append(readings, r)
			})
			require.NoError(t, err)

			ag := testAgent(t, m, sensor.Options{Baseline: c.baseline, Period: time.Millisecond})
			require.NoError(t, ag.Start())
			time.Sleep(50 * time.Millisecond)
			ag.Stop()

			require.NotEmpty(t, readings)
			for _, r := range readings {
				assert.GreaterOrEqual(t, r.CO2, sensor.MinCO2)
				assert.LessOrEqual(t, r.CO2, sensor.MaxCO2)
			}
		})
	}
}

func TestSendFailureNotCounted(t *testing.T) {
	t.Parallel()
	lg := log2.NewTest(t, log2.LDebug)
	m := transport.NewMock(lg)

	received := 0
	_, err := m.Bind("gw", func([]byte) { received++ })
	require.NoError(t, err)

	delivery := new(stat.Delivery)
	ag := testAgent(t, m, sensor.Options{Period: time.Hour, Delivery: delivery})
	m.FailNext("gw", 1)
	// only the immediate first emission happens within this test
	require.NoError(t, ag.Start())
	time.Sleep(20 * time.Millisecond)
	ag.Stop()

	sent, _ := delivery.Snapshot()
	assert.Equal(t, uint32(0), sent)
	assert.Equal(t, 0, received)
}

func TestStopCancelsPendingEmission(t *testing.T) {
	t.Parallel()
	lg := log2.NewTest(t, log2.LDebug)
	m := transport.NewMock(lg)

	received := 0
	_, err := m.Bind("gw", func([]byte) { received++ })
	require.NoError(t, err)

	ag := testAgent(t, m, sensor.Options{Period: 30 * time.Millisecond})
	require.NoError(t, ag.Start())
	time.Sleep(5 * time.Millisecond)
	ag.Stop() // before the second emission is due
	ag.Stop() // idempotent

	after := received
	assert.Equal(t, 1, after)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, received, "late fire after Stop")

	// Start after Stop must fail fast
	assert.Error(t, ag.Start())
}

func TestNewValidation(t *testing.T) {
	t.Parallel()
	lg := log2.NewTest(t, log2.LDebug)
	m := transport.NewMock(lg)
	sender, err := m.Open("gw")
	require.NoError(t, err)

	good := sensor.Options{ID: 1, Group: 1, Baseline: 400, Period: time.Second, Delivery: new(stat.Delivery)}

	cases := []struct {
		name string
		mod  func(*sensor.Options)
	}{
		{"zero-id", func(o *sensor.Options) { o.ID = 0 }},
		{"zero-group", func(o *sensor.Options) { o.Group = 0 }},
		{"zero-period", func(o *sensor.Options) { o.Period = 0 }},
		{"nil-delivery", func(o *sensor.Options) { o.Delivery = nil }},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			opt := good
			c.mod(&opt)
			_, err := sensor.New(lg, sender, opt)
			assert.Error(t, err)
		})
	}

	_, err = sensor.New(lg, nil, good)
	assert.Error(t, err)
}
