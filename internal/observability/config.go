package observability

// Config captures opt-in observability toggles for the HTTP surface.
type Config struct {
	// EnablePprofTrace mounts the net/http/pprof handlers under /debug/pprof/.
	EnablePprofTrace bool
	// DiagnosticsEvents includes the event router counters in /diagnostics.
	DiagnosticsEvents bool
}

// Default enables the event counters and leaves profiling off.
func Default() Config {
	return Config{DiagnosticsEvents: true}
}
