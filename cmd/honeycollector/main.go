// Binary honeycollector terminates sensor mTLS sessions and persists
// validated alerts to the time-series store.
package main

import (
	"os"

	"github.com/edoardooldani/honeysensor/cmd/honeycollector/cmd"
	"github.com/edoardooldani/honeysensor/pkg/logging"
)

func main() {
	if err := cmd.Execute(); err != nil {
		_ = logging.Init("honeycollector", "devel", "info", "logfmt")
		logging.Logger().With("error", err).Error("honeycollector terminated with an error")
		os.Exit(1)
	}
}
