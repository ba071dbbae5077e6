package config

import (
	"flag"
	"fmt"
)

const HelpMessage = `Taxi dispatch

Usage:
  dispatch --mode=<mode> [--config=config.yaml] [--env-file=.env]

Modes:
  dispatch-service   order intake, driver search, live connections, notifications
  location-ingest    consumes driver locations from Kafka into the store and geo index

Every config.yaml key can be overridden by its environment variable,
for example dispatch.offer_timeout -> DISPATCH_OFFER_TIMEOUT.
`

func PrintHelp() {
	if HelpMessage != "" {
		fmt.Printf("%s", HelpMessage)
	} else {
		flag.Usage()
	}
}
