package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/ledring/internal/chart"
	"github.com/coreman2200/ledring/internal/config"
	"github.com/coreman2200/ledring/internal/discovery"
	"github.com/coreman2200/ledring/internal/hook"
	"github.com/coreman2200/ledring/internal/layout"
	"github.com/coreman2200/ledring/internal/led"
	"github.com/coreman2200/ledring/internal/metrics"
	"github.com/coreman2200/ledring/internal/scene"
	"github.com/coreman2200/ledring/internal/stream"
	"github.com/coreman2200/ledring/internal/surface"
	"github.com/coreman2200/ledring/internal/ws"
	"periph.io/x/conn/v3/physic"
)

// Service type announced when advertising the surface hub.
const hubService = "_ledring._tcp"

func main() {
	// ---- Flags (remain usable; config.yaml overrides what it sets) ----
	cfg := config.Default()
	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		simOnly    = flag.Bool("sim-only", false, "force simulation (no hardware output)")
		chartID    = flag.String("chart", "proximity", "element id of the proximity chart")
	)
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flag.IntVar(&cfg.FPS, "fps", cfg.FPS, "render ticks per second")
	flag.StringVar(&cfg.Driver, "driver", cfg.Driver, "LED driver: sim | spi | screen")
	flag.StringVar(&cfg.Element, "element", cfg.Element, "element id of the panel scene")
	flag.IntVar(&cfg.Ring.NumPanels, "panels", cfg.Ring.NumPanels, "number of panels in the ring")
	flag.StringVar(&cfg.Stream.URL, "stream", cfg.Stream.URL, "event stream websocket url (empty browses mDNS)")
	flag.BoolVar(&cfg.Advertise, "advertise", cfg.Advertise, "announce the surface hub over mDNS")
	flag.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level")
	flag.Parse()

	if err := config.LoadInto(*configPath, cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *simOnly {
		cfg.Driver = led.Sim
	}

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.Log.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	}
	if lvl, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("level", cfg.Log.Level).Msg("unknown log level; using info")
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// ---- Metrics ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		log.Fatal().Err(err).Msg("metrics")
	}

	// ---- LED output ----
	count := layout.PanelGrid(cfg.Ring.NumPanels).Count()
	drv, selected, err := led.Open(led.Options{
		Kind:  cfg.Driver,
		Count: count,
		Port:  cfg.SPI.Port,
		Freq:  physic.Frequency(cfg.SPI.SpeedHz) * physic.Hertz,
	}, log.Logger)
	if err != nil {
		log.Warn().Err(err).Str("driver", cfg.Driver).Msg("driver init failed; using SIM")
		drv, selected = led.NewSim(count, log.Logger), led.Sim
	}

	// ---- Hub, mirror and host ----
	var mirror *led.Mirror
	hub := ws.NewHub(ws.Options{
		Config:     cfg,
		ConfigPath: *configPath,
		Driver:     selected,
		Metrics:    m,
		Logger:     log.Logger,
		FrameID:    func() uint64 { return mirror.FrameID() },
	})
	mirror = led.NewMirror(drv, led.MirrorOptions{
		NumPanels: cfg.Ring.NumPanels,
		FPS:       cfg.FPS,
		WhiteCap:  cfg.Power.WhiteCap,
		LimitAmps: cfg.Power.LimitAmps,
		Luminance: uint8(cfg.Power.Luminance),
		Diag:      hub,
		Logger:    log.Logger,
	})
	host := hook.NewHost(hook.Options{
		FPS:      cfg.FPS,
		Surfaces: surface.Multi{hub, mirror},
		Metrics:  m,
		Diag:     hub,
		Logger:   log.Logger,
	})
	hub.Bind(host, mirror)

	pixels := scene.New(scene.Options{
		Ring: layout.Ring{
			Diameter:            cfg.Ring.Diameter,
			Height:              cfg.Ring.Height,
			PoleDiameter:        cfg.Ring.PoleDiameter,
			FootDiameter:        cfg.Ring.FootDiameter,
			ButtonPolesDiameter: cfg.Ring.ButtonPolesDiameter,
		},
		Metrics: m,
	})
	if err := host.Mount("pixels3d", hook.Element{
		ID:    cfg.Element,
		Attrs: map[string]string{"num-panels": strconv.Itoa(cfg.Ring.NumPanels)},
	}, pixels); err != nil {
		log.Error().Err(err).Msg("panel scene inert")
	}
	prox := chart.New(chart.Options{MaxPoints: cfg.Chart.MaxPoints, Algorithms: cfg.Chart.Algorithms, Metrics: m})
	if err := host.Mount("proximity_chart", hook.Element{ID: *chartID}, prox); err != nil {
		log.Error().Err(err).Msg("proximity chart inert")
	}

	// ---- HTTP routes ----
	mux := http.NewServeMux()
	hub.Routes(mux)
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      withCORS(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				log.Error().Err(err).Str("task", name).Msg("stopped")
			}
		}()
	}

	run("host", host.Run)
	run("led", mirror.Run)
	run("stream", func(ctx context.Context) error {
		url, err := streamURL(ctx, cfg.Stream)
		if err != nil {
			return err
		}
		return stream.NewClient(stream.Config{URL: url, Retry: cfg.Stream.Retry}, host, m, hub, log.Logger).Run(ctx)
	})
	if cfg.Advertise {
		if err := advertise(ctx, cfg.Addr); err != nil {
			log.Warn().Err(err).Msg("mDNS advertise failed")
		}
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Str("driver", selected).Int("panels", cfg.Ring.NumPanels).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server crashed")
		}
	}()

	// ---- Graceful shutdown ----
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	wg.Wait()
	if err := mirror.Close(); err != nil {
		log.Warn().Err(err).Msg("led close")
	}
}

func streamURL(ctx context.Context, s config.Stream) (string, error) {
	if s.URL != "" {
		return s.URL, nil
	}
	log.Info().Str("service", s.Service).Msg("browsing for event server")
	server, err := discovery.Browse(ctx, s.Service, 5*time.Second)
	if err != nil {
		return "", err
	}
	log.Info().Str("name", server.Name).Str("url", server.URL()).Msg("discovered event server")
	return server.URL(), nil
}

func advertise(ctx context.Context, addr string) error {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return err
	}
	name, err := os.Hostname()
	if err != nil {
		name = "ledring"
	}
	return discovery.Advertise(ctx, name, hubService, port, "path=/surface")
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h.ServeHTTP(w, r)
	})
}
