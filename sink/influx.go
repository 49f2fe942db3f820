package sink

import (
	"context"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/juju/errors"

	"github.com/ecoledger/carbonet/log2"
	"github.com/ecoledger/carbonet/wire"
)

type InfluxOptions struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Influx writes each reading as one point in measurement "co2".
type Influx struct {
	log    *log2.Log
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

func NewInflux(log *log2.Log, opt InfluxOptions) (*Influx, error) {
	if opt.URL == "" {
		return nil, errors.Errorf("sink: influx url not configured")
	}
	client := influxdb2.NewClient(opt.URL, opt.Token)
	return &Influx{
		log:    log,
		client: client,
		write:  client.WriteAPIBlocking(opt.Org, opt.Bucket),
	}, nil
}

func (i *Influx) Put(ctx context.Context, r wire.Reading, topo wire.Topology) error {
	groupTag := "company"
	if topo == wire.Hierarchical {
		groupTag = "zone"
	}
	p := influxdb2.NewPoint("co2",
		map[string]string{
			"sensor": strconv.FormatUint(uint64(r.Sensor), 10),
			groupTag: strconv.FormatUint(uint64(r.Group), 10),
		},
		map[string]interface{}{"ppm": r.CO2},
		time.Now())
	if err := i.write.WritePoint(ctx, p); err != nil {
		return errors.Annotatef(err, "sink: influx write sensor=%d", r.Sensor)
	}
	return nil
}

func (i *Influx) Close() {
	i.client.Close()
}
