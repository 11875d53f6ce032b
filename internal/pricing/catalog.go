package pricing

import (
	"fmt"
	"regexp"
)

// regionPattern matches real region identifiers such as us-east-1 or
// us-gov-west-1 and rejects the decorative entries that share the dropdown
// with them.
var regionPattern = regexp.MustCompile(`^[a-z]{2}(-gov)?-[a-z]+-[1-9]$`)

// IsRegion reports whether s is a region identifier.
func IsRegion(s string) bool {
	return regionPattern.MatchString(s)
}

// FilterCatalog narrows a discovered catalog to an allow-list. An empty
// allow-list keeps the full catalog. Any allow-list entry missing from the
// catalog fails the whole call; a run must not silently skip a requested
// target.
func FilterCatalog(catalog, allow []string) ([]string, error) {
	if len(allow) == 0 {
		out := make([]string, len(catalog))
		copy(out, catalog)
		return out, nil
	}

	known := make(map[string]struct{}, len(catalog))
	for _, c := range catalog {
		known[c] = struct{}{}
	}

	out := make([]string, 0, len(allow))
	for _, a := range allow {
		if _, ok := known[a]; !ok {
			return nil, fmt.Errorf("pricing: %q is not in the catalog", a)
		}
		out = append(out, a)
	}
	return out, nil
}
