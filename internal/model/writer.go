package model

// Writer defines a generic interface for handing a finished window report to an output:
// the terminal, the HTTP API, or an exporter.
type Writer interface {
	// Write takes a report and emits it. Reports are never modified after they are handed
	// out, so a writer may keep a reference.
	Write(report *Report) error

	// Name identifies the writer in logs and metrics.
	Name() string

	// Close releases the writer's resources.
	Close() error
}
