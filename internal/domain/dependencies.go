package domain

// Dependencies is one task's view of the dependency graph.
type Dependencies struct {
	Blocks         []TaskID `json:"blocks" yaml:"blocks"`
	BlockedBy      []TaskID `json:"blockedBy" yaml:"blockedBy"`
	Parallelizable []TaskID `json:"parallelizable" yaml:"parallelizable"`
}

// Clone returns a copy that shares no slices with d
func (d Dependencies) Clone() Dependencies {
	return Dependencies{
		Blocks:         append([]TaskID(nil), d.Blocks...),
		BlockedBy:      append([]TaskID(nil), d.BlockedBy...),
		Parallelizable: append([]TaskID(nil), d.Parallelizable...),
	}
}
