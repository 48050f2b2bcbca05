package domain

import "slices"

// The id sets on Review are plain sorted slices so that they serialize
// deterministically and compare with slices.Equal.

func addID(set []string, id string) []string {
	i, found := slices.BinarySearch(set, id)
	if found {
		return set
	}
	return slices.Insert(slices.Clone(set), i, id)
}

func removeID(set []string, id string) []string {
	i, found := slices.BinarySearch(set, id)
	if !found {
		return set
	}
	return slices.Delete(slices.Clone(set), i, i+1)
}

func hasID(set []string, id string) bool {
	_, found := slices.BinarySearch(set, id)
	return found
}

// NormalizeIDs sorts ids and drops duplicates and empty values.
func NormalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
