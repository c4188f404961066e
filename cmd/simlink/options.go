package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"pkt.systems/pslog"
	"pkt.systems/simlink/display"
	"pkt.systems/simlink/httpapi"
	"pkt.systems/simlink/internal/appconfig"
	"pkt.systems/simlink/internal/eventbus"
	"pkt.systems/simlink/internal/metrics"
	"pkt.systems/simlink/internal/render"
	"pkt.systems/simlink/internal/transport"
)

func (o *rootOptions) load() (appconfig.Config, error) {
	cfg, err := appconfig.Load(o.configPath)
	if err != nil {
		return appconfig.Config{}, err
	}
	if o.socketPath != "" {
		cfg.SocketPath = o.socketPath
	}
	return cfg, nil
}

func displayOptions(cfg appconfig.Config) (display.Options, error) {
	kind, err := render.ParseKind(cfg.Client.Renderer)
	if err != nil {
		return display.Options{}, err
	}
	mode, err := render.ParseColorMode(cfg.Client.ColorMode)
	if err != nil {
		return display.Options{}, err
	}
	return display.Options{
		SocketPath: cfg.SocketPath,
		Renderer:   kind,
		ColorMode:  mode,
		StatusLine: cfg.Client.StatusLine,
		KeyHold:    time.Duration(cfg.Client.KeyHoldMS) * time.Millisecond,
		MaxFPS:     cfg.Client.MaxFPS,
		RingSize:   cfg.Client.RingSize,
		ConfigVars: cfg.Client.ConfigVars,
		Dial: transport.DialOptions{
			Attempts:       cfg.Client.ConnectAttempts,
			InitialBackoff: time.Duration(cfg.Client.ConnectBackoffMS) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.Client.ConnectBackoffMaxMS) * time.Millisecond,
		},
	}, nil
}

// observability bundles the metrics registry and event bus a command
// exposes on the debug endpoint.
type observability struct {
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	bus      *eventbus.Bus
}

func newObservability(logger pslog.Logger) observability {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return observability{registry: reg, metrics: metrics.New(reg), bus: eventbus.New(logger)}
}

// startDebug runs the debug endpoint in g when addr is set.
func (o observability) startDebug(ctx context.Context, g *errgroup.Group, addr string) {
	if addr == "" {
		return
	}
	srv := httpapi.New(o.bus, o.registry)
	g.Go(func() error {
		srv.Watch(ctx)
		return nil
	})
	g.Go(func() error {
		return httpapi.ListenAndServe(ctx, addr, srv.Handler())
	})
}
