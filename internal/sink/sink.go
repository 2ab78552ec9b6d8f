// Package sink implements the five Result Sink contracts: a local
// filesystem/CSV sink for ad-hoc runs, an in-memory sink, and Postgres,
// GCS, and Pub/Sub sinks for production deployments, covering filesystem
// writer conventions, pgxpool row inserts, object upload, and Pub/Sub
// publish.
package sink

import "fmt"

// ErrUnconfigured is returned by a sink constructor when required
// configuration is missing, letting callers fail fast during startup
// rather than on the first Put.
var ErrUnconfigured = fmt.Errorf("sink is not configured")
