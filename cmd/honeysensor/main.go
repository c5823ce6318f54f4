// Binary honeysensor captures local traffic, scores flows for anomalies,
// and answers scans against synthesized honeypot identities.
package main

import (
	"os"

	"github.com/edoardooldani/honeysensor/cmd/honeysensor/cmd"
	"github.com/edoardooldani/honeysensor/pkg/logging"
)

func main() {
	if err := cmd.Execute(); err != nil {
		_ = logging.Init("honeysensor", "devel", "info", "logfmt")
		logging.Logger().With("error", err).Error("honeysensor terminated with an error")
		os.Exit(1)
	}
}
