// Package device defines the domain model and platform contracts for a
// single-link Bluetooth Low Energy central.
//
// It contains:
//   - Peripheral records, connection states and the GATT service tree
//   - The error taxonomy shared by every layer (see Error and the Err* sentinels)
//   - Capability interfaces consumed from the platform (Radio, Link, Scanner)
//   - The Observer contract notified of discovery, connection and service events
//
// Nothing in this package talks to a radio. Backends live under
// internal/platform and the state machine lives in internal/manager.
package device
