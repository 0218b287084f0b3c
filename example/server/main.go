package main

import (
	"context"
	"flag"
	"time"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-pantheon/fabrica-igtl/conf"
	"github.com/go-pantheon/fabrica-igtl/http/health"
	"github.com/go-pantheon/fabrica-igtl/sink"
	"github.com/go-pantheon/fabrica-util/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

var (
	confPath    = flag.String("conf", "", "config file, yaml or json")
	network     = flag.String("network", "", "override sink network: tcp, ws or kcp")
	capturePath = flag.String("replay", "", "replay records from a capture file instead of simulating")
	recordPath  = flag.String("record", "", "write the simulated records to a capture file")
	interval    = flag.Duration("interval", 50*time.Millisecond, "time between frames")
)

func main() {
	flag.Parse()

	c, err := loadConf()
	if err != nil {
		log.Errorf("load config failed. %+v", err)
		return
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	out := sink.New(sink.WithConf(c), sink.WithRegisterer(reg))

	servers := []transport.Server{sink.NewServer(out)}
	if c.Health.Addr != "" {
		servers = append(servers, health.NewServer(c.Health.Addr, out, reg))
	}

	app := kratos.New(
		kratos.Name("igtl-sink"),
		kratos.Server(servers...),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer cancel()
		return app.Run()
	})

	eg.Go(func() error {
		p, err := newProducer(out, *capturePath, *recordPath, *interval)
		if err != nil {
			_ = app.Stop()
			return err
		}

		defer p.Close()

		if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			_ = app.Stop()
			return err
		}

		return nil
	})

	if err := eg.Wait(); err != nil {
		log.Errorf("sink stopped with error. %+v", err)
		return
	}

	log.Infof("sink stopped")
}

func loadConf() (conf.Config, error) {
	c := conf.Default()

	if *confPath != "" {
		loaded, err := conf.Load(*confPath)
		if err != nil {
			return c, err
		}

		c = loaded
	}

	if *network != "" {
		c.Sink.Network = *network
	}

	if err := c.Validate(); err != nil {
		return c, err
	}

	return c, nil
}
