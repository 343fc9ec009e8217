// Package version provides build version information for the sitebuilder binary.
// These variables are set at build time via ldflags.
package version

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	promversion "github.com/prometheus/common/version"
)

// Build information variables.
// Example: go build -ldflags "-X sitebuilder/pkg/version.Version=v1.2.3".
//
//nolint:gochecknoglobals // These must be package-level vars for ldflags injection.
var (
	// Version is the semantic version (e.g., "v1.2.3" or "dev" for development builds).
	Version = "dev"

	// Commit is the git commit SHA of the build.
	Commit = "none"

	// Date is the build date in ISO format.
	Date = "unknown"
)

// String renders the build information on one line.
func String() string {
	return fmt.Sprintf("sitebuilder %s (commit %s, built %s)", Version, Commit, Date)
}

// Collector exports sitebuilder_build_info{version,revision,goversion,...} = 1.
func Collector() prometheus.Collector {
	promversion.Version = Version
	promversion.Revision = Commit
	promversion.BuildDate = Date
	return versioncollector.NewCollector("sitebuilder")
}
