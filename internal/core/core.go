// Package core contains the main struct of the software.
package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"

	"github.com/ossrs/srs-sub009/internal/conf"
	"github.com/ossrs/srs-sub009/internal/logger"
	"github.com/ossrs/srs-sub009/internal/servers/gb"
)

var version = "v0.0.0"

var cli struct {
	Version  bool   `help:"print version"`
	Confpath string `arg:"" default:"gateway.yml"`
}

// Core is an instance of the gateway.
type Core struct {
	ctx       context.Context
	ctxCancel func()
	confPath  string
	conf      *conf.Conf
	confFound bool
	logger    *logger.Logger
	gbServer  *gb.Server

	// out
	done chan struct{}
}

// New allocates a Core.
func New(args []string) (*Core, bool) {
	parser, err := kong.New(&cli,
		kong.Description("GB28181 gateway "+version),
		kong.UsageOnError(),
		kong.ValueFormatter(func(value *kong.Value) string {
			switch value.Name {
			case "confpath":
				return "path to a config file. The default is gateway.yml."

			default:
				return kong.DefaultHelpValueFormatter(value)
			}
		}))
	if err != nil {
		panic(err)
	}

	_, err = parser.Parse(args)
	parser.FatalIfErrorf(err)

	if cli.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	p := &Core{
		ctx:       ctx,
		ctxCancel: ctxCancel,
		confPath:  cli.Confpath,
		done:      make(chan struct{}),
	}

	p.conf, p.confFound, err = conf.Load(p.confPath)
	if err != nil {
		fmt.Printf("ERR: %s\n", err)
		return nil, false
	}

	err = p.createResources()
	if err != nil {
		if p.logger != nil {
			p.Log(logger.Error, "%s", err)
		} else {
			fmt.Printf("ERR: %s\n", err)
		}
		p.closeResources()
		return nil, false
	}

	go p.run()

	return p, true
}

// Close closes Core and waits for all goroutines to return.
func (p *Core) Close() {
	p.ctxCancel()
	<-p.done
}

// Wait waits for the Core to exit.
func (p *Core) Wait() {
	<-p.done
}

// Log is the main logging function.
func (p *Core) Log(level logger.Level, format string, args ...interface{}) {
	p.logger.Log(level, format, args...)
}

func (p *Core) run() {
	defer close(p.done)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	select {
	case <-interrupt:
		p.Log(logger.Info, "shutting down gracefully")

	case <-p.ctx.Done():
	}

	p.ctxCancel()

	p.closeResources()
}

func (p *Core) createResources() error {
	var err error

	p.logger, err = logger.New(
		logger.Level(p.conf.LogLevel),
		p.conf.LogDestinations,
		p.conf.LogFile,
	)
	if err != nil {
		return err
	}

	p.Log(logger.Info, "gateway %s", version)
	if !p.confFound {
		p.Log(logger.Warn, "configuration file not found, using defaults")
	}

	p.gbServer = &gb.Server{
		SIPAddress:        p.conf.SIPAddress,
		MediaAddress:      p.conf.MediaAddress,
		SIPTimeout:        p.conf.SIPTimeout,
		ReinviteWait:      p.conf.ReinviteWait,
		Candidate:         p.conf.Candidate,
		OutputURL:         p.conf.OutputURL,
		DetectPSIntegrity: p.conf.DetectPSIntegrity,
		Parent:            p,
	}
	err = p.gbServer.Initialize()
	if err != nil {
		return err
	}

	return nil
}

func (p *Core) closeResources() {
	if p.gbServer != nil {
		p.gbServer.Close()
	}

	if p.logger != nil {
		p.logger.Close()
	}
}
