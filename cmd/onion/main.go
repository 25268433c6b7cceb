// Command onion runs a demo server built on the onion middleware core.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AchrafSoltani/onion"
	"github.com/AchrafSoltani/onion/middleware"
)

// runContext is bound to the Run method of the selected command.
type runContext struct {
	config *onion.Config
	logger *slog.Logger
	stdout io.Writer
}

// CLI is the command line interface of the demo.
type CLI struct {
	Serve Serve `kong:"cmd,default='1',help='Start the demo server.'"`
	Token Token `kong:"cmd,help='Print a signed token for the /api endpoints.'"`

	ConfigFile string           `kong:"name='config',type='path',help='Path to a YAML configuration file.'"`
	LogLevel   string           `kong:"name='log-level',help='Override the configured log level.'"`
	Version    kong.VersionFlag `kong:"help='Output version and exit.'"`
}

// Serve starts the HTTP server.
type Serve struct {
	Addr   string `kong:"help='Listen address. Defaults to host:port from the configuration.'"`
	Secret string `kong:"default='change-me',help='HMAC secret for the /api endpoints.'"`
}

// Run builds the application and blocks until it is shut down.
func (s *Serve) Run(rc *runContext) error {
	app := onion.New(onion.WithConfig(rc.config), onion.WithLogger(rc.logger))

	app.Use(middleware.RequestID())
	app.Use(middleware.LoggerWithSkipPaths(rc.logger, rc.config.Metrics.Path))
	if rc.config.Debug {
		app.Use(middleware.DebugRecovery())
	} else {
		app.Use(middleware.RecoveryWithConfig(middleware.RecoveryConfig{Logger: rc.logger}))
	}
	app.Use(middleware.CORSDefault())

	if rc.config.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics, err := middleware.NewMetrics(reg)
		if err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
		app.Use(metrics.Handler())
		app.Mount(rc.config.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	app.Use(responseTime)
	app.Use(routes(middleware.JWT([]byte(s.Secret))))

	return app.RunWithGracefulShutdown(s.Addr)
}

// Token prints a signed demo token.
type Token struct {
	Subject string        `kong:"arg,help='Token subject.'"`
	Secret  string        `kong:"default='change-me',help='HMAC secret shared with the server.'"`
	TTL     time.Duration `kong:"default='1h',help='Token lifetime.'"`
}

// Run signs and prints the token.
func (t *Token) Run(rc *runContext) error {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": t.Subject,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(t.TTL).Unix(),
	})
	signed, err := token.SignedString([]byte(t.Secret))
	if err != nil {
		return fmt.Errorf("signing token: %w", err)
	}
	_, err = fmt.Fprintln(rc.stdout, signed)
	return err
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("onion"),
		kong.Description("Demo server for the onion middleware core."),
		kong.UsageOnError(),
		kong.DefaultEnvars("ONION"),
		kong.Vars{"version": onion.Version},
	)

	cfg, err := onion.Load(cli.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}

	logger, err := onion.NewLoggerFromConfig(os.Stderr, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	err = kctx.Run(&runContext{config: cfg, logger: logger, stdout: os.Stdout})
	kctx.FatalIfErrorf(err)
}
