// Package supervisor owns the lifecycle of worker processes, one per session.
//
// A session is started with StartSession. The supervisor composes the child's
// environment from a snapshot of the ambient environment overlaid with the
// session's configuration, launches the worker, and resolves exactly once:
//
//   - Stream mode (stdio): stdin/stdout/stderr are piped and the handle is
//     returned as soon as the process has started. No readiness signal is
//     awaited.
//   - Network mode (http): the worker binds its own port. Its output is
//     forwarded line by line to the logger, and the handle is returned after a
//     grace period unless the worker exits non-zero first.
//
// Per session the state moves Starting → Ready | Failed. Failures are typed:
// *SpawnError when the OS could not create the process, *ExitError when the
// worker exited non-zero before readiness. Exits after readiness are reported
// through Handle.Exited, the event publisher, and the recorder, never through
// the original StartSession result.
//
// The supervisor never stops a worker on its own. Handle.Close (stdin close,
// SIGTERM, grace, SIGKILL) and Supervisor.Shutdown are the teardown paths.
package supervisor
