package eventlog

import "github.com/rzbill/evpipe/pkg/id"

// ArchiverHook is an optional callback invoked when trims delete ranges.
// Implementations may enqueue ranges to an archiver or emit metrics.
type ArchiverHook interface {
	EmitTrimRange(log string, first, last id.ID, deleted int)
}

type noopArchiver struct{}

func (noopArchiver) EmitTrimRange(string, id.ID, id.ID, int) {}
