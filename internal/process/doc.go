// Package process owns child processes spawned on behalf of projects.
//
// Registry is the single owner of live child handles, keyed by an opaque
// string (by convention "<project>:<role>", see Key):
//   - Spawn starts a child in its own process group and forwards raw
//     stdout/stderr chunks to a caller supplied OutputSink
//   - Terminate sends SIGTERM to the group and escalates to SIGKILL once
//     the grace period runs out
//   - TerminateAllMatching stops every key selected by a predicate, in parallel
//   - every exit removes the key and is classified as success, signaled or
//     non-zero (Exit)
//
// TerminatePID applies the same escalation to a pid this registry does not
// own, such as a dev server left behind by a previous session.
//
// Example:
//
//	reg := process.NewRegistry(&process.RegistryOptions{Logger: logger})
//	h, err := reg.Spawn(process.Spec{
//	    Key:     process.Key("web", "server"),
//	    Command: "npm",
//	    Args:    []string{"run", "dev"},
//	    Dir:     "/home/me/web",
//	    Sink: func(key, stream string, chunk []byte) {
//	        fmt.Print(string(chunk))
//	    },
//	})
//	defer reg.Terminate(h.Key, process.DefaultGracePeriod)
package process
