// Package scanning drives scans for hostsweep.
//
// A Scanner takes a target specification and a profile, checks the target,
// hands a Request to an Engine and turns the engine's Report into a sealed
// models.ScanResult. NmapEngine is the production engine; tests substitute
// the gomock mock in the mocks package.
//
// # Lifecycle
//
// Run parses the target (and resolves hostnames when a Resolver is set)
// before the engine is touched, so a bad target never launches a scan. The
// result is created with its start time, filled host by host through
// Host.AddPort, then sealed. When the engine fails no result is returned.
//
// # Errors
//
// Engine failures are mapped onto the internal/errors codes:
//
//   - CodeDependencyMissing: the nmap binary is absent; carries a remediation hint
//   - CodeTargetInvalid: the target did not parse or resolve
//   - CodeTimeout: the run exceeded the configured timeout
//   - CodeCanceled: the caller's context was canceled
//   - CodeEngineFailure: anything else the engine reported
//
// # Metrics
//
// Every Run counts one scan (labelled success or failed). Successful runs
// also set the hosts gauge and observe the duration histogram. Ports are
// counted by the model as they are attached.
//
// # Concurrency
//
// A Scanner holds a single-slot ResourceManager, so concurrent calls to Run
// on the same Scanner queue behind each other.
package scanning
