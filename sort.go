// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rangezip

import "sort"

// EntrySortStrategy defines the order in which entries are visited when
// fetching many of them. Choosing the right strategy can favor sequential
// reads on the remote side or get small entries out first.
type EntrySortStrategy int

const (
	SortDefault          EntrySortStrategy = iota // Central directory order
	SortOffsetAscending                           // Physical order in the archive
	SortSizeAscending                             // Smallest compressed size first
	SortSizeDescending                            // Largest compressed size first
	SortSmallFilesFirst                           // Entries under 1 MB first, relative order kept
	SortAlphabetical                              // A-Z by name
)

// SortEntries returns a sorted copy of entries according to the strategy.
// The input slice is not modified.
func SortEntries(entries []Entry, strategy EntrySortStrategy) []Entry {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	if len(sorted) <= 1 {
		return sorted
	}

	switch strategy {
	case SortOffsetAscending:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].LocalHeaderOffset < sorted[j].LocalHeaderOffset
		})

	case SortSizeAscending:
		// Use SliceStable to ensure deterministic order for equal-sized entries
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].CompressedSize < sorted[j].CompressedSize
		})

	case SortSizeDescending:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].CompressedSize > sorted[j].CompressedSize
		})

	case SortSmallFilesFirst:
		return partitionStable(sorted, func(e *Entry) bool {
			return e.CompressedSize < 1<<20
		})

	case SortAlphabetical:
		// Note: This naturally groups entries in the same directory together.
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Name < sorted[j].Name
		})
	}

	return sorted
}

// partitionStable splits entries into two groups based on the keepFirst condition.
// It preserves the relative order of elements within groups (Stable).
// Complexity: O(N) time, O(N) space.
func partitionStable(entries []Entry, keepFirst func(*Entry) bool) []Entry {
	countFirst := 0
	for i := range entries {
		if keepFirst(&entries[i]) {
			countFirst++
		}
	}

	result := make([]Entry, len(entries))

	// Pointers for where to write the next element
	idxFirst := 0
	idxSecond := countFirst

	for i := range entries {
		if keepFirst(&entries[i]) {
			result[idxFirst] = entries[i]
			idxFirst++
		} else {
			result[idxSecond] = entries[i]
			idxSecond++
		}
	}

	return result
}
