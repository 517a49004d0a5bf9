// Command rethos-mcp is a standalone MCP introspection server for
// offline/historical inspection: it reads only the history database
// rethosd persisted, with no live reactor, serial device, or channel
// endpoints. rethosd -mcp-stdio serves the same tools with channel
// metadata from -channels-config; it does not run the bridge either.
package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rethos/rethos/pkg/chanconfig"
	"github.com/rethos/rethos/pkg/channel"
	"github.com/rethos/rethos/pkg/mcpintrospect"
	"github.com/rethos/rethos/pkg/stats"
	"github.com/rethos/rethos/pkg/store"
)

func main() {
	// Logging must go to stderr — stdout is the MCP transport.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	dbPath := flag.String("db", "", "Path to the history database file (required)")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal().Msg("rethos-mcp requires -db pointing at a rethosd history database")
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open history database")
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close history database")
		}
	}()
	log.Info().Str("path", st.Path()).Msg("history database opened")

	// No live reactor exists in this process, so the counters are always
	// zero and no channel is ever connected; get_link_sessions and
	// get_mcu_address remain useful, get_stats and list_channels degrade
	// to their zero values.
	collector := stats.NewCollector()
	var channels [stats.NumChannels]*channel.Endpoint
	chanMeta, err := chanconfig.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load channel configuration")
	}

	mcpServer := mcpintrospect.NewServer(collector, channels, chanMeta, st)

	log.Info().Msg("starting standalone MCP introspection server on stdio")
	if err := mcpServer.ServeStdio(); err != nil {
		log.Fatal().Err(err).Msg("MCP server failed")
	}
}
