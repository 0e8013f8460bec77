// Package app wires the desktop backend and runs it.
//
// # Initialization Flow
//
//  1. Load configuration from defaults, the YAML file and the environment
//  2. Initialize logging and OpenTelemetry
//  3. Derive the device fingerprint and build the license validator on the
//     signed file store
//  4. Build the event hub and the job queue, restore the job snapshot and
//     subscribe both to license results
//  5. Mount the local API
//
// # Lifecycle
//
// Serve runs the hub, the queue workers, the license refresher and the HTTP
// server in one errgroup. Cancelling the context shuts the server down,
// persists the job set and flushes telemetry. Errors are returned to the
// caller; the package never calls os.Exit.
package app
