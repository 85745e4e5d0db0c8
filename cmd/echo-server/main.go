// Command echo-server wires a Reactor up to a trivial line-echoing
// Protocol, with Prometheus metrics on /metrics and OpenTelemetry traces
// written to stdout, matching the worked scenario of a single listener
// handling many short-lived connections.
package main

import (
	"context"
	"flag"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/fluxorio/reactor/pkg/config"
	"github.com/fluxorio/reactor/pkg/logging"
	"github.com/fluxorio/reactor/pkg/reactor"
)

// serverConfig is the file-loadable shape of the server's settings.
// Durations decode from strings like "10ms" and "30s".
type serverConfig struct {
	Addr        string `yaml:"addr" json:"addr"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`

	MaxConnections      int             `yaml:"max_connections" json:"max_connections"`
	TimersPerConnection int             `yaml:"timers_per_connection" json:"timers_per_connection"`
	NotifyQueueDepth    int             `yaml:"notify_queue_depth" json:"notify_queue_depth"`
	OutboxByteLimit     int             `yaml:"outbox_byte_limit" json:"outbox_byte_limit"`
	WheelTick           config.Duration `yaml:"wheel_tick" json:"wheel_tick"`
	WheelSize           int             `yaml:"wheel_size" json:"wheel_size"`

	IdleTimeout config.Duration `yaml:"idle_timeout" json:"idle_timeout"`
}

func defaultServerConfig() serverConfig {
	cfg := reactor.DefaultConfig()
	return serverConfig{
		Addr:                "127.0.0.1:9000",
		MetricsAddr:         "127.0.0.1:9001",
		MaxConnections:      cfg.MaxConnections,
		TimersPerConnection: cfg.TimersPerConnection,
		NotifyQueueDepth:    cfg.NotifyQueueDepth,
		OutboxByteLimit:     cfg.OutboxByteLimit,
		WheelTick:           config.Duration(cfg.WheelTick),
		WheelSize:           cfg.WheelSize,
		IdleTimeout:         config.Duration(30 * time.Second),
	}
}

func (sc serverConfig) reactorConfig() reactor.Config {
	return reactor.Config{
		MaxConnections:      sc.MaxConnections,
		TimersPerConnection: sc.TimersPerConnection,
		NotifyQueueDepth:    sc.NotifyQueueDepth,
		OutboxByteLimit:     sc.OutboxByteLimit,
		WheelTick:           sc.WheelTick.Std(),
		WheelSize:           sc.WheelSize,
	}
}

func loadConfig(path string) (serverConfig, error) {
	sc := defaultServerConfig()
	if path != "" {
		if err := config.LoadWithEnv(path, "ECHO", &sc); err != nil {
			return sc, err
		}
	} else if err := config.ApplyEnv("ECHO", &sc); err != nil {
		return sc, err
	}

	err := config.Validate(&sc,
		config.Required("Addr", "MetricsAddr"),
		config.ValidatorFunc(func(interface{}) error {
			return sc.reactorConfig().Validate(nil)
		}),
	)
	return sc, err
}

func main() {
	configPath := flag.String("config", "", "optional YAML/JSON config file")
	flag.Parse()

	log := logging.NewJSON()

	sc, err := loadConfig(*configPath)
	if err != nil {
		log.Errorf("config load failed: %v", err)
		os.Exit(1)
	}
	shutdownTracing, err := setupTracing()
	if err != nil {
		log.Errorf("tracing setup failed: %v", err)
		os.Exit(1)
	}
	defer shutdownTracing()

	reg := prometheus.NewRegistry()
	go serveMetrics(sc.MetricsAddr, reg, log)

	r := reactor.New(sc.reactorConfig(),
		reactor.WithLogger(log),
		reactor.WithMetricsRegistry(reg),
	)

	idle := sc.IdleTimeout.Std()
	if _, err := r.Listen(sc.Addr, func() reactor.Protocol { return &echoLineProtocol{idle: idle} }); err != nil {
		log.Errorf("listen on %s: %v", sc.Addr, err)
		os.Exit(1)
	}
	log.Infof("echo-server listening on %s, metrics on %s", sc.Addr, sc.MetricsAddr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := r.Run(ctx); err != nil && err != context.Canceled {
		log.Errorf("reactor exited: %v", err)
		os.Exit(1)
	}
	log.Info("echo-server shut down cleanly")
}

func setupTracing() (func(), error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warnf("metrics server stopped: %v", err)
	}
}

// echoLineProtocol writes back every byte it reads and tears the
// connection down once the peer has gone quiet for the configured idle
// timeout.
type echoLineProtocol struct {
	reactor.BaseProtocol
	idle      time.Duration
	nextMsgID uint64
}

const idleTimer = reactor.TimerId(1)

func (p *echoLineProtocol) OnAccept(tok reactor.Token, peer net.Addr) *reactor.Command {
	return reactor.Timer(p.idle, idleTimer)
}

func (p *echoLineProtocol) OnData(r io.Reader) *reactor.Command {
	buf := make([]byte, 4096)
	n, err := r.Read(buf)
	if n == 0 {
		if err == io.EOF {
			return nil
		}
		return nil
	}
	p.nextMsgID++
	w := reactor.AcquireWriter()
	w.Write(buf[:n])
	return reactor.Cons(
		reactor.Write(w.Finish(), p.nextMsgID),
		reactor.RearmTimer(idleTimer, p.idle),
	)
}

func (p *echoLineProtocol) OnTimer(id reactor.TimerId) *reactor.Command {
	if id != idleTimer {
		return nil
	}
	return reactor.Kill(reactor.Empty())
}
