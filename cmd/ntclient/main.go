// ntclient connects to pub/sub telemetry server, prints received values
// and optionally publishes from interactive console.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/temoto/ntsync/helpers/cli"
	"github.com/temoto/ntsync/log2"
	nt_config "github.com/temoto/ntsync/nt/config"
	"github.com/temoto/ntsync/nt/metrics"
	"github.com/temoto/ntsync/nt/wsnet"
	ucli "github.com/urfave/cli/v3"
)

var (
	// Populated at build-time via -ldflags.
	version = "dev"
)

type flags struct {
	ConfigPath string
	Debug      bool

	config *nt_config.Config
	log    *log2.Log
}

func main() {
	log := log2.NewStderr(log2.LInfo)
	f := &flags{log: log}
	app := &ucli.Command{
		Name:    "ntclient",
		Usage:   "pub/sub telemetry client",
		Version: version,
		Flags: []ucli.Flag{
			&ucli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to HCL config file",
				Sources:     ucli.EnvVars("NTCLIENT_CONFIG"),
				Value:       "ntclient.hcl",
				Destination: &f.ConfigPath,
			},
			&ucli.BoolFlag{
				Name:        "debug",
				Usage:       "debug log level, overrides log_debug",
				Destination: &f.Debug,
			},
		},
		Before: func(ctx context.Context, c *ucli.Command) (context.Context, error) {
			if sdnotify("STATUS=start") {
				// under systemd journal, timestamps are redundant
				log.SetFlags(log2.LServiceFlags)
			} else {
				log.SetFlags(log2.LInteractiveFlags)
			}
			cfg, err := nt_config.ReadConfigFile(f.ConfigPath)
			if err != nil {
				return ctx, err
			}
			f.config = cfg
			if f.Debug || cfg.LogDebug {
				log.SetLevel(log2.LDebug)
			}
			return ctx, nil
		},
		Commands: []*ucli.Command{
			{
				Name:   "run",
				Usage:  "connect and print topic events until signal",
				Action: f.run,
			},
			{
				Name:   "console",
				Usage:  "run with interactive console on stdin",
				Action: f.console,
			},
			{
				Name:   "dump-config",
				Usage:  "print effective config as JSON",
				Action: f.dumpConfig,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}

// start connects app session, returns stop func.
func (f *flags) start(a *app) (func() error, error) {
	cfg := f.config
	if err := a.configure(cfg); err != nil {
		return nil, err
	}
	url, err := cfg.URL()
	if err != nil {
		return nil, err
	}
	if cfg.MetricsListen != "" {
		reg := prometheus.NewRegistry()
		if err := metrics.Register(reg, a.session.Stat(), prometheus.Labels{"server": url}); err != nil {
			return nil, err
		}
		go func() {
			if err := metrics.Serve(cfg.MetricsListen, reg, f.log); err != nil {
				f.log.Error(err)
			}
		}()
	}
	ready := false
	c, err := wsnet.NewClient(a.session, wsnet.Options{
		URL:            url,
		Log:            f.log,
		NetworkTimeout: cfg.NetworkTimeout(),
		RetryDelay:     cfg.RetryDelay(),
		SendQueue:      cfg.SendQueueSize(),
		OnConnect: func() {
			if !ready {
				ready = true
				sdnotify(daemon.SdNotifyReady)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	return c.Close, nil
}

func (f *flags) run(ctx context.Context, _ *ucli.Command) error {
	a := newApp(f.config, f.log, os.Stdout)
	stop, err := f.start(a)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()
	sdnotify(daemon.SdNotifyStopping)
	f.log.Infof("stopping")
	return stop()
}

func (f *flags) console(ctx context.Context, _ *ucli.Command) error {
	a := newApp(f.config, f.log, os.Stdout)
	stop, err := f.start(a)
	if err != nil {
		return err
	}
	loopErr := cli.MainLoop("ntclient", a.exec, consoleSuggest)
	if err := stop(); err != nil {
		return err
	}
	return loopErr
}

func (f *flags) dumpConfig(ctx context.Context, _ *ucli.Command) error {
	b, err := json.MarshalIndent(f.config, "", "  ")
	if err != nil {
		return errors.Annotate(err, "dump-config")
	}
	fmt.Println(string(b))
	return nil
}

func sdnotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log2.NewStderr(log2.LError).Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}
