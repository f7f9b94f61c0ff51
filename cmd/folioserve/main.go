// Command folioserve renders the portfolio page once and serves it to every
// TCP client.
//
// Usage:
//
//	folioserve [serve] [-config folioserve.yaml]
//	folioserve probe [-addr 127.0.0.1:8080] [-timeout 5s]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cyberinferno/folioserve/config"
	"github.com/cyberinferno/folioserve/logger"
	"github.com/cyberinferno/folioserve/portfolio"
	"github.com/cyberinferno/folioserve/probe"
	"github.com/cyberinferno/folioserve/rendercache"
	"github.com/cyberinferno/folioserve/tcpserver"
	"github.com/fatih/color"
)

const serviceName = "folioserve"

// buildTimeout bounds rendering, which may wait on a shared redis cache.
const buildTimeout = 30 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		return serve(args, stderr)
	case "probe":
		return probeCmd(args, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "%s: unknown command %q (want serve or probe)\n", serviceName, cmd)
		return 2
	}
}

func serve(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", serviceName, err)
		return 1
	}

	log, err := logger.New(logger.Options{
		Service: serviceName,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Dir:     cfg.Log.Dir,
	})
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", serviceName, err)
		return 1
	}
	defer func() { _ = log.Close() }()

	if cfg.Server.RaiseFileLimit {
		raiseFileLimit(log)
	}

	srv, err := newServer(context.Background(), cfg, log)
	if err != nil {
		log.Error("failed to prepare response", logger.Err(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		srv.Stop()
	}()

	if err := srv.ListenAndServe(); err != nil {
		log.Error("server exited", logger.F("addr", cfg.Addr()), logger.Err(err))
		return 1
	}

	return 0
}

// newServer renders the response and returns a server ready to bind. The
// response is final before any connection can be accepted.
func newServer(ctx context.Context, cfg config.Config, log logger.Logger) (*tcpserver.Server, error) {
	site, err := portfolio.LoadSite(cfg.SiteFile)
	if err != nil {
		return nil, err
	}

	cache, err := rendercache.New(cfg.CacheOptions())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, buildTimeout)
	defer cancel()

	response, err := portfolio.Build(ctx, cache, site, cfg.Cache.TTL)
	if err != nil {
		return nil, err
	}

	log.Info("response ready",
		logger.F("projects", len(site.Projects)),
		logger.F("bytes", len(response)),
		logger.F("cache", cfg.Cache.Backend),
		logger.F("digest", portfolio.Digest(site)))

	return tcpserver.New(tcpserver.Options{
		Name:         serviceName,
		Addr:         cfg.Addr(),
		WriteTimeout: cfg.Server.WriteTimeout,
		MaxHandlers:  cfg.Server.MaxHandlers,
	}, response, log), nil
}

func probeCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", config.Default().Addr(), "server address")
	timeout := fs.Duration("timeout", probe.DefaultTimeout, "dial and read timeout")
	verbose := fs.Bool("v", false, "print the response")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	fail := color.New(color.FgRed, color.Bold)
	ok := color.New(color.FgGreen, color.Bold)

	res, err := probe.Fetch(context.Background(), probe.Config{Address: *addr, Timeout: *timeout})
	if err == nil {
		err = probe.Check(res)
	}

	if err != nil {
		fail.Fprint(stdout, "FAIL")
		fmt.Fprintf(stdout, " %s: %v\n", *addr, err)
		if errors.Is(err, probe.ErrUnexpectedResponse) {
			return 3
		}
		return 1
	}

	ok.Fprint(stdout, "OK")
	fmt.Fprintf(stdout, " %s: %d bytes\n", *addr, len(res))
	if *verbose {
		_, _ = stdout.Write(res)
		fmt.Fprintln(stdout)
	}

	return 0
}
