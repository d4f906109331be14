// Command xcd is the jail engine daemon: it owns the control socket,
// the sqlite store, and every running container's reactor. Its CLI
// skeleton (kong.Parse, an initSlog-style logger setup gated by a
// --log-level flag) is grounded on cmd/sand/main.go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/banksean/xcd/config"
	"github.com/banksean/xcd/freebsd"
	"github.com/banksean/xcd/registry"
	"github.com/banksean/xcd/store"
	"github.com/banksean/xcd/telemetry"
	"github.com/banksean/xcd/version"
	"github.com/banksean/xcd/xcdserver"
)

type CLI struct {
	ConfigPath  string `default:"/usr/local/etc/xcd.yaml" placeholder:"<config-path>" help:"path to the daemon's YAML configuration file"`
	LogFile     string `default:"/var/log/xcd.log" placeholder:"<log-file-path>" help:"location of the daemon's rotated log file"`
	LogLevel    string `default:"info" placeholder:"<debug|info|warn|error>" help:"the logging level (debug, info, warn, error)"`
	OTLPTarget  string `placeholder:"<host:port>" help:"OTLP/gRPC collector endpoint for container lifecycle spans; leave empty to disable tracing"`

	Run     RunCmd     `cmd:"" help:"run the daemon in the foreground"`
	Version VersionCmd `cmd:"" help:"print version information"`
}

type RunCmd struct{}

func (c *RunCmd) Run(cli *CLI) error {
	telemetry.NewLogger(telemetry.LogConfig{Path: cli.LogFile, Level: cli.LogLevel})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.NewTracerProvider(ctx, telemetry.TraceConfig{
		Endpoint:    cli.OTLPTarget,
		ServiceName: "xcd",
		Insecure:    true,
	})
	if err != nil {
		return fmt.Errorf("xcd: tracing setup: %w", err)
	}
	defer shutdownTracing(context.Background())

	cfg, err := config.Load(cli.ConfigPath)
	if err != nil {
		return fmt.Errorf("xcd: load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("xcd: invalid config: %w", err)
	}

	st, err := store.Open(cfg.DatabaseStore)
	if err != nil {
		return fmt.Errorf("xcd: open store: %w", err)
	}
	defer st.Close()

	srv := xcdserver.New(cfg, freebsd.NewHost(), st, registry.New())
	return srv.Serve(ctx)
}

type VersionCmd struct{}

func (c *VersionCmd) Run(cli *CLI) error {
	info := version.Get()
	fmt.Printf("xcd %s (%s)\n", info.GitCommit, info.BuildTime)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli, kong.Description("xcd manages FreeBSD jail-based containers."))
	ctx.FatalIfErrorf(ctx.Run(&cli))
}
