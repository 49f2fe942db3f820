// carbonet runs the IoT carbon-telemetry pipeline and prints the final
// collection report.
//
// Usage: carbonet [-config=carbonet.hcl] flat|hier
package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/daemon"
	"github.com/joho/godotenv"
	"github.com/juju/errors"

	"github.com/ecoledger/carbonet/cmd/carbonet/subcmd"
	"github.com/ecoledger/carbonet/config"
	"github.com/ecoledger/carbonet/log2"
	"github.com/ecoledger/carbonet/report"
	"github.com/ecoledger/carbonet/scenario"
	"github.com/ecoledger/carbonet/transport"
)

var modules = []subcmd.Mod{
	{Name: "flat", Main: mainFlat},
	{Name: "hier", Main: mainHierarchical},
}

func main() {
	flagConfig := flag.String("config", "carbonet.hcl", "")
	flag.Parse()

	logLevel := log2.LInfo
	lg := log2.NewStderr(logLevel)
	if subcmd.SdNotify("start") {
		// under systemd assume journal logging, remove timestamp
		lg.SetFlags(log2.LServiceFlags)
	} else {
		lg.SetFlags(log2.LInteractiveFlags)
	}

	// optional .env for secrets like INFLUX_TOKEN
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		lg.Errorf("dotenv err=%v", err)
	}

	mod, err := subcmd.Parse(flag.Arg(0), modules)
	if err != nil {
		fmt.Fprintf(os.Stderr, "command line: %v\n", err)
		fmt.Fprintf(os.Stderr, "usage: carbonet [-config=carbonet.hcl] flat|hier\n")
		os.Exit(1)
	}

	cfg := config.MustReadConfig(lg, config.NewOsFullReader(), *flagConfig)
	if cfg.Scenario.LogDebug {
		lg.SetLevel(log2.LDebug)
	}
	if cfg.Influx.Enable && cfg.Influx.Token == "" {
		cfg.Influx.Token = os.Getenv("INFLUX_TOKEN")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	subcmd.SdNotify(daemon.SdNotifyReady)
	if err := mod.Main(ctx, lg, cfg); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}

func mainFlat(ctx context.Context, lg *log2.Log, cfg *config.Config) error {
	net, closeNet, err := buildNet(lg, cfg)
	if err != nil {
		return errors.Trace(err)
	}
	defer closeNet()

	rep, err := scenario.RunFlat(ctx, lg, cfg, net)
	if err != nil {
		return errors.Trace(err)
	}
	return emit(lg, cfg, rep)
}

func mainHierarchical(ctx context.Context, lg *log2.Log, cfg *config.Config) error {
	net, closeNet, err := buildNet(lg, cfg)
	if err != nil {
		return errors.Trace(err)
	}
	defer closeNet()

	rep, err := scenario.RunHierarchical(ctx, lg, cfg, net)
	if err != nil {
		return errors.Trace(err)
	}
	return emit(lg, cfg, rep)
}

func buildNet(lg *log2.Log, cfg *config.Config) (transport.Net, func(), error) {
	if !cfg.Mqtt.Enable {
		m := transport.NewMock(lg)
		return m, m.Close, nil
	}
	clientID := cfg.Mqtt.ClientID
	if clientID == "" {
		clientID = "carbonet"
	}
	m, err := transport.NewMQTT(lg, transport.MQTTOptions{
		Broker:       cfg.Mqtt.Broker,
		ClientID:     clientID,
		Password:     cfg.Mqtt.Password,
		TopicPrefix:  cfg.Mqtt.TopicPrefix,
		KeepaliveSec: cfg.Mqtt.KeepaliveSec,
		LogDebug:     cfg.Mqtt.LogDebug,
	})
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	return m, m.Close, nil
}

func emit(lg *log2.Log, cfg *config.Config, rep *report.Report) error {
	text := rep.String()
	fmt.Print(text)
	if path := cfg.Scenario.ResultsFile; path != "" {
		if err := ioutil.WriteFile(path, []byte(text), 0644); err != nil {
			return errors.Annotatef(err, "results file=%s", path)
		}
		lg.Infof("results saved to %s", path)
	}
	return nil
}
