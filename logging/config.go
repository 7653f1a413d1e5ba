package logging

import "time"

// Sink names understood by the app and by SFERA_LOG_SINKS.
const (
	SinkConsole = "console"
	SinkJSON    = "json"
	SinkPhysics = "physics"
)

type Config struct {
	EnabledSinks    []string
	BufferSize      int
	MinimumSeverity Severity
	Fields          map[string]any
	// Routes restricts a sink to the listed categories. Sinks without an
	// entry receive every category.
	Routes map[string][]string

	Console ConsoleConfig
	// JSON is the full event stream.
	JSON FileConfig
	// Physics collects collision-search and energy-log diagnostics apart
	// from the main stream.
	Physics FileConfig
}

type FileConfig struct {
	FilePath      string
	FlushInterval time.Duration
}

type ConsoleConfig struct {
	// FilePath redirects console output to a file, used while the terminal
	// UI owns stdout.
	FilePath string
}

func DefaultConfig() Config {
	return Config{
		EnabledSinks:    []string{SinkConsole},
		BufferSize:      256,
		MinimumSeverity: SeverityInfo,
		Routes: map[string][]string{
			SinkPhysics: {CategoryPhysics},
		},
		JSON:    FileConfig{FilePath: "sfera-events.jsonl", FlushInterval: 2 * time.Second},
		Physics: FileConfig{FilePath: "sfera-physics.jsonl", FlushInterval: 2 * time.Second},
	}
}

func (c Config) HasSink(name string) bool {
	for _, s := range c.EnabledSinks {
		if s == name {
			return true
		}
	}
	return false
}

func (c Config) CloneFields() map[string]any {
	if len(c.Fields) == 0 {
		return nil
	}
	cloned := make(map[string]any, len(c.Fields))
	for k, v := range c.Fields {
		cloned[k] = v
	}
	return cloned
}
