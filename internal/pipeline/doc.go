// Package pipeline drives a project from "nothing on disk" to "dev server
// running": acquire a checkout, prepare it, install, build and start.
//
// Each Run walks the states
//
//	Initializing → AcquiringWorkspace → BranchSetup → IdentityConfiguration
//	→ DependencyInstall → Build → ServerStarting → Running
//
// and may leave for Failed at any step, or for Cancelling → Cancelled when
// Cancel is called. A run is Succeeded as soon as the server is spawned;
// Running is entered later, when the server's output shows it is ready.
// Callers must not treat "spawned" as "ready".
//
// Step failures are reported with the step's full output and are never
// retried; a retry is a new Run.
package pipeline
