// Command wkmpap is the playback pipeline's entrypoint: a single binary
// exposing a long-running "play" process plus one-shot queue-management
// subcommands (enqueue, dequeue, skip, status), grounded on the teacher's
// main.go -> cmd.RootCommand(settings) structure.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/google/uuid"

	"github.com/wkmp/wkmp-ap/internal/buildinfo"
	"github.com/wkmp/wkmp-ap/internal/cpuspec"
	"github.com/wkmp/wkmp-ap/internal/logging"
	"github.com/wkmp/wkmp-ap/internal/playerconf"
)

// version and buildDate are set via -ldflags "-X main.version=... -X
// main.buildDate=..." at release build time; "dev"/"unknown" otherwise.
// Mirrors internal/conf/config.go's package-level buildDate var.
var (
	version   = "dev"
	buildDate = "unknown"
)

// build is this process's buildinfo.Context, logged at startup and
// exposed as the metrics package's build_info gauge. systemID is
// process-scoped rather than persisted: this domain has no notion of a
// durable system identity, only a run-to-run telemetry label.
var build = buildinfo.NewContext(version, buildDate, uuid.NewString())

func main() {
	configPath := os.Getenv("WKMP_CONFIG")

	settings, err := playerconf.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wkmpap: loading configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init()
	if level, err := parseLevel(settings.Logging.Level); err == nil {
		logging.SetLevel(level)
	}

	// The decode/resample path is single-threaded per passage but
	// latency-sensitive; pin GOMAXPROCS to performance cores on hybrid
	// CPUs so the Go scheduler doesn't spread it onto efficiency cores.
	if n := cpuspec.GetCPUSpec().GetOptimalThreadCount(); n > 0 {
		runtime.GOMAXPROCS(n)
	}

	logging.Structured().Info("starting wkmpap",
		"version", build.Version(),
		"build_date", build.BuildDate(),
		"system_id", build.SystemID(),
		"gomaxprocs", runtime.GOMAXPROCS(0),
	)

	root := RootCommand(settings)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "wkmpap: %v\n", err)
		os.Exit(1)
	}
}
