//go:build linux

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/touka-aoi/low-level-relay/client"
	"github.com/touka-aoi/low-level-relay/core/socket"
	"github.com/touka-aoi/low-level-relay/transport"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] hostname port\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	var (
		network    = flag.String("network", "tcp", "tcp for the relay server, udp for the echo server")
		count      = flag.Int("count", client.DefaultCount, "Number of messages to send")
		size       = flag.Int("size", 0, "Message size in bytes (default 512 for tcp, 10000 for udp)")
		timeout    = flag.Duration("timeout", client.DefaultTimeout, "How long to wait for a reply after each send")
		filler     = flag.String("filler", string(client.DefaultFiller), "Byte the messages are filled with")
		sendRate   = flag.Float64("rate", 0, "Maximum messages per second (0 means no limit)")
		watchStdin = flag.Bool("watch-stdin", false, "Also wake up when standard input becomes readable")
		quiet      = flag.Bool("quiet", false, "Do not print a line per message")
		debug      = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 2 || len(*filler) != 1 {
		usage()
		os.Exit(1)
	}
	host, port := flag.Arg(0), flag.Arg(1)

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	remote, err := transport.Resolve(*network, host, port)
	if err != nil {
		slog.Error("Failed to resolve", "host", host, "port", port, "error", err)
		os.Exit(1)
	}
	fmt.Printf("Connecting to %s\n", socket.FormatNumeric(remote))

	conn, err := transport.DialAddr(*network, remote)
	if err != nil {
		slog.Error("Failed to connect", "address", remote, "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	config := client.DefaultConfig(*network)
	config.Count = *count
	config.Filler = (*filler)[0]
	config.Timeout = *timeout
	config.WatchStdin = *watchStdin
	config.Rate = *sendRate
	if *size > 0 {
		config.Size = *size
	}
	var progress io.Writer = os.Stdout
	if *quiet {
		progress = nil
	}
	config.Progress = progress

	result, err := client.NewHarness(conn, config).Run(ctx)
	if result != nil {
		if rerr := result.Render(os.Stdout); rerr != nil {
			slog.Error("Failed to write report", "error", rerr)
		}
	}
	if err != nil {
		slog.Error("Burst failed", "error", err)
		conn.Close()
		os.Exit(1)
	}
}
