/*
This command provides an executable version of the gateway.

For the list of command line options, run:

	gateway -help

For details about the routes, the circuit breakers and the support
endpoints, see the documentation of the root gateway package.
*/
package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/fundflow/gateway"
	"github.com/fundflow/gateway/config"
)

var (
	version string
	commit  string
)

func main() {
	cfg := config.NewConfig()
	if err := cfg.Parse(); err != nil {
		log.Fatalf("Error processing config: %s", err)
	}

	if cfg.PrintVersion {
		fmt.Printf("Gateway version %s (commit: %s)\n", version, commit)
		return
	}

	if err := gateway.Run(cfg.ToOptions()); err != nil {
		log.Fatal(err)
	}
}
