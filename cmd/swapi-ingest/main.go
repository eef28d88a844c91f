// Command swapi-ingest ingests planets from the SWAPI listing into
// PostgreSQL and keeps raw snapshots in a blob store.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

// Version is reported by the version command and sent in the User-Agent.
const Version = "1.0.0"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}
