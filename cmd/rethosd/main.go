// Command rethosd is the REthos bridge daemon: it owns the serial link
// to the MCU, the optional TUN device, and the 256 channel endpoints, and
// serves the ambient admin HTTP surface alongside the reactor. With
// -mcp-stdio it serves the MCP introspection surface on stdio instead of
// running the reactor.
//
// Invocation: rethosd <serial-device> <baudrate> [<ipv6-prefix>]
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rethos/rethos/pkg/admin"
	"github.com/rethos/rethos/pkg/bridge"
	"github.com/rethos/rethos/pkg/chanconfig"
	"github.com/rethos/rethos/pkg/channel"
	"github.com/rethos/rethos/pkg/mcpintrospect"
	"github.com/rethos/rethos/pkg/serialport"
	"github.com/rethos/rethos/pkg/stats"
	"github.com/rethos/rethos/pkg/store"
	"github.com/rethos/rethos/pkg/tundev"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	adminAddr := flag.String("admin-addr", "", "Address for the read-only admin HTTP server (empty disables it)")
	mcpStdio := flag.Bool("mcp-stdio", false, "Serve the MCP introspection surface on stdio instead of running the bridge")
	dbPath := flag.String("db", "", "Path to the history database file (empty disables persistence)")
	chanConfigPath := flag.String("channels-config", "", "Path to a JSON file naming channels >= 4 (empty disables channel metadata)")
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		log.Fatal().Msg("usage: rethosd <serial-device> <baudrate> [<ipv6-prefix>]")
	}
	devicePath := args[0]

	baudRate, err := strconv.Atoi(args[1])
	if err != nil || !serialport.ValidBaudRate(baudRate) {
		log.Fatal().Str("baudrate", args[1]).Msg("invalid baud rate")
	}

	var prefix net.IP
	if len(args) >= 3 {
		prefix = net.ParseIP(args[2])
		if prefix == nil {
			log.Fatal().Str("prefix", args[2]).Msg("invalid IPv6 prefix")
		}
	}

	chanMeta, err := chanconfig.Load(*chanConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load channel configuration")
	}

	var st *store.Store
	if *dbPath != "" {
		st, err = store.Open(*dbPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open history database")
		}
		defer func() {
			if err := st.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close history database")
			}
		}()
		log.Info().Str("path", st.Path()).Msg("history database opened")
	}

	collector := stats.NewCollector()

	var channels [stats.NumChannels]*channel.Endpoint
	for i := range channels {
		ep, err := channel.New(uint8(i))
		if err != nil {
			log.Fatal().Err(err).Int("channel", i).Msg("failed to create channel endpoint")
		}
		channels[i] = ep
	}
	defer func() {
		for _, ep := range channels {
			_ = ep.Close()
		}
	}()

	if *mcpStdio {
		mcpServer := mcpintrospect.NewServer(collector, channels, chanMeta, st)
		log.Info().Msg("starting MCP introspection server on stdio")
		if err := mcpServer.ServeStdio(); err != nil {
			log.Fatal().Err(err).Msg("MCP server failed")
		}
		return
	}

	port, err := serialport.Open(devicePath, baudRate)
	if err != nil {
		log.Fatal().Err(err).Str("device", devicePath).Msg("failed to open serial device")
	}
	defer func() {
		if err := port.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close serial device")
		}
	}()
	log.Info().Str("device", devicePath).Int("baud", baudRate).Msg("serial device opened")

	var tun *tundev.Device
	if prefix != nil {
		tun, err = tundev.Open(prefix)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create TUN device")
		}
		defer func() {
			if err := tun.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close TUN device")
			}
		}()
		log.Info().Str("iface", tun.Name()).Str("mcu_addr", tun.MCUAddress().String()).Msg("TUN device configured")
	} else {
		log.Info().Msg("no IPv6 prefix given, tuntap channel is inert")
	}

	var reactorTun bridge.TunIO
	if tun != nil {
		reactorTun = tun
	}

	r := bridge.New(bridge.Config{
		Serial:    port,
		Collector: collector,
		Channels:  channels,
		TUN:       reactorTun,
		Store:     st,
		ChanMeta:  chanMeta,
	})

	if *adminAddr != "" {
		adminServer := admin.New(collector, channels, chanMeta, st)
		go func() {
			if err := adminServer.Run(*adminAddr); err != nil {
				log.Error().Err(err).Msg("admin HTTP server stopped")
			}
		}()
		log.Info().Str("address", *adminAddr).Msg("admin HTTP server started")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := r.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("bridge reactor failed")
	}
	log.Info().Msg("rethosd shut down cleanly")
}
