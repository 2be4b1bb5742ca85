package vpc

import (
	"slices"
	"strings"
)

// FilterMode selects how a RegionFilter narrows the enabled regions
type FilterMode int

const (
	FilterAll FilterMode = iota
	FilterInclude
	FilterExclude
)

func (m FilterMode) String() string {
	switch m {
	case FilterAll:
		return "all"
	case FilterInclude:
		return "include"
	case FilterExclude:
		return "exclude"
	default:
		return "unknown"
	}
}

// RegionFilter is the region policy for a run. Exactly one mode is active;
// the constructors are the only way to build one.
type RegionFilter struct {
	mode  FilterMode
	names []string
}

// AllRegions selects every enabled region
func AllRegions() RegionFilter {
	return RegionFilter{mode: FilterAll}
}

// IncludeRegions selects only the named regions
func IncludeRegions(names ...string) RegionFilter {
	return RegionFilter{mode: FilterInclude, names: normaliseNames(names)}
}

// ExcludeRegions selects every enabled region except the named ones
func ExcludeRegions(names ...string) RegionFilter {
	return RegionFilter{mode: FilterExclude, names: normaliseNames(names)}
}

func (f RegionFilter) Mode() FilterMode {
	return f.mode
}

// Names returns the regions named by an include or exclude filter
func (f RegionFilter) Names() []string {
	return slices.Clone(f.names)
}

// ParseRegionList splits a comma separated list of regions, trimming
// whitespace and dropping empty entries
func ParseRegionList(csv string) []string {
	parts := strings.Split(csv, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	return names
}

func normaliseNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || slices.Contains(out, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// SelectRegions applies the filter to the enabled regions, preserving the
// order the provider reported them in. Include and exclude filters that name
// a region which is not enabled fail with a *ValidationError so that a typo
// never silently changes the scope of a run.
func SelectRegions(filter RegionFilter, enabled []string) ([]string, error) {
	if filter.mode != FilterAll {
		var unknown []string
		for _, name := range filter.names {
			if !slices.Contains(enabled, name) {
				unknown = append(unknown, name)
			}
		}
		if len(unknown) > 0 {
			return nil, &ValidationError{
				Unknown: unknown,
				Enabled: slices.Clone(enabled),
			}
		}
	}

	chosen := make([]string, 0, len(enabled))
	for _, region := range enabled {
		// each region is processed at most once
		if slices.Contains(chosen, region) {
			continue
		}

		switch filter.mode {
		case FilterAll:
			chosen = append(chosen, region)
		case FilterInclude:
			if slices.Contains(filter.names, region) {
				chosen = append(chosen, region)
			}
		case FilterExclude:
			if !slices.Contains(filter.names, region) {
				chosen = append(chosen, region)
			}
		}
	}

	return chosen, nil
}
