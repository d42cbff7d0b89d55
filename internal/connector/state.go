package connector

// RunState is the orchestrator's phase. Transitions are strictly sequential;
// StateFailed is reachable from any phase.
type RunState int

const (
	StateIdle RunState = iota
	StateLoaderSync
	StateDomainSchemaSync
	StateDynamicSchemaSync
	StateDataSync
	StateOrphanSync
	StateExtentSync
	StateDone
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoaderSync:
		return "loader-sync"
	case StateDomainSchemaSync:
		return "domain-schema-sync"
	case StateDynamicSchemaSync:
		return "dynamic-schema-sync"
	case StateDataSync:
		return "data-sync"
	case StateOrphanSync:
		return "orphan-sync"
	case StateExtentSync:
		return "extent-sync"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
