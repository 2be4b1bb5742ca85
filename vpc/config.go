package vpc

// Config is the immutable configuration of a run
type Config struct {
	Filter RegionFilter

	// ListOnly reports default VPCs and their interface counts without
	// mutating anything
	ListOnly bool

	// AutoAccept approves every confirmation without prompting
	AutoAccept bool
}

// Validate rejects contradictory settings. It makes no remote calls.
func (c Config) Validate() error {
	if c.ListOnly && c.AutoAccept {
		return &ConfigError{Reason: "list-only mode and auto-accept mode are mutually exclusive"}
	}

	switch c.Filter.Mode() {
	case FilterInclude, FilterExclude:
		if len(c.Filter.Names()) == 0 {
			return &ConfigError{Reason: "--" + c.Filter.Mode().String() + " requires at least one region"}
		}
	case FilterAll:
	default:
		return &ConfigError{Reason: "unknown region filter"}
	}

	return nil
}
