package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NodePath81/dlprobe/internal/config"
	"github.com/NodePath81/dlprobe/internal/server"
	"github.com/NodePath81/dlprobe/internal/util"
	dlprobe "github.com/NodePath81/dlprobe/pkg"
)

func main() {
	mode := flag.String("mode", "client", "Mode: client or server")
	configPath := flag.String("config", "", "Optional YAML configuration file")
	verbose := flag.Bool("verbose", false, "Enable informational logging")

	hostname := flag.String("hostname", "", "Measurement server host")
	port := flag.String("port", "", "Measurement server port")
	adaptive := flag.Bool("adaptive", false, "End the test early once throughput converges")
	skipTLSVerify := flag.Bool("skip-tls-verify", false, "Skip TLS certificate verification")
	disableTLS := flag.Bool("disable-tls", false, "Connect over plain ws://")
	scramble := flag.Bool("scramble", false, "Obfuscate TLS-less streams with the pre-shared key")
	proxyAddr := flag.String("proxy", "", "SOCKS5 proxy address (host:port)")
	duration := flag.Duration("duration", 0, "Fixed-mode test duration (0 = engine default)")

	listen := flag.String("listen", "", "Server listen address (server mode)")
	rateMbps := flag.Float64("rate", 0, "Server pacing rate in Mbit/s (0 = unpaced)")
	messageSize := flag.Int("message-size", 0, "Server binary message size in bytes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	// Explicit flags win over the configuration file.
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["hostname"] {
		cfg.Client.Hostname = *hostname
	}
	if set["port"] {
		cfg.Client.Port = *port
	}
	if set["adaptive"] {
		cfg.Client.Adaptive = *adaptive
	}
	if set["skip-tls-verify"] {
		cfg.Client.SkipTLSVerify = *skipTLSVerify
	}
	if set["disable-tls"] {
		cfg.Client.DisableTLS = *disableTLS
	}
	if set["scramble"] {
		cfg.Client.Scramble = *scramble
	}
	if set["proxy"] {
		cfg.Client.Proxy = *proxyAddr
	}
	if set["duration"] {
		cfg.Client.Duration = config.Duration(*duration)
	}
	if set["listen"] {
		cfg.Server.Listen = *listen
	}
	if set["rate"] {
		cfg.Server.RateMbps = *rateMbps
	}
	if set["message-size"] {
		cfg.Server.MessageSize = *messageSize
	}

	logger := util.NewQuietLogger()
	if *verbose {
		logger = util.NewLogger()
	}

	if *mode == "server" {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		err := server.Run(ctx, server.Config{
			Addr:        cfg.Server.Listen,
			RateBps:     cfg.Server.RateMbps * 1e6,
			MessageSize: cfg.Server.MessageSize,
			Duration:    time.Duration(cfg.Server.Duration),
			Logger:      logger,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	session := dlprobe.NewSession(logger)
	err = session.Start(dlprobe.Config{
		Adaptive:      cfg.Client.Adaptive,
		Hostname:      cfg.Client.Hostname,
		Port:          cfg.Client.Port,
		SkipTLSVerify: cfg.Client.SkipTLSVerify,
		DisableTLS:    cfg.Client.DisableTLS,
		Scramble:      cfg.Client.Scramble,
		Proxy:         cfg.Client.Proxy,
		Duration:      time.Duration(cfg.Client.Duration),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		session.Stop()
	}()

	rv := 0
	var summary *dlprobe.Summary
	for {
		ev, ok := session.NextEvent()
		if !ok {
			break
		}
		if ev.Type == dlprobe.EventError {
			rv = 1
		}
		if ev.Type == dlprobe.EventSummary {
			summary = ev.Summary
		}
		data, err := json.Marshal(ev)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	}
	if summary != nil {
		fmt.Fprintf(os.Stderr, "%s over %s in %.1fs (%s)\n",
			util.FormatBitrate(summary.FinalBps),
			util.FormatBytes(float64(summary.TotalBytes)),
			float64(summary.DurationMs)/1000,
			summary.Reason)
	}
	os.Exit(rv)
}
