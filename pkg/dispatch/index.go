package dispatch

import (
	"fmt"
	"reflect"
	"sort"
)

// criterionIndex accumulates every criterion seen so far for a single
// expression within one dispatch family, and answers "which cases apply to
// seed S" during compilation. Inequality is the only family whose Seeds
// depend on what's already indexed (its new seeds split the existing ranges
// around its breakpoint); every other family's Seeds are fixed, so reseeding
// them is a no-op beyond deduplication. Seeds are only ever appended: a
// range that a later breakpoint splits stays in the list beside its pieces.
type criterionIndex struct {
	family     DispatchFamily
	allSeeds   []Seed
	seedSet    map[string]bool
	byCase     map[int]Criterion
	matchSeeds map[int][]Seed
	caseOrder  []int
}

func newCriterionIndex(family DispatchFamily) *criterionIndex {
	return &criterionIndex{
		family:     family,
		seedSet:    map[string]bool{},
		byCase:     map[int]Criterion{},
		matchSeeds: map[int][]Seed{},
	}
}

// AllSeeds implements IndexView, handed to a Criterion's Seeds method so
// Inequality can split the existing range list around its own breakpoint.
func (idx *criterionIndex) AllSeeds() []Seed { return append([]Seed(nil), idx.allSeeds...) }

// Add registers a case's criterion, recomputing the merged seed set (this
// may grow for every other Inequality case in the index too, since a new
// breakpoint refines everyone's ranges) and each case's matching seeds.
func (idx *criterionIndex) Add(caseID int, c Criterion) {
	idx.byCase[caseID] = c
	idx.caseOrder = append(idx.caseOrder, caseID)
	newSeeds := c.Seeds(idx)
	idx.mergeSeeds(newSeeds)
	idx.recomputeMatches()
}

func (idx *criterionIndex) mergeSeeds(seeds []Seed) {
	for _, s := range seeds {
		key := seedKey(s)
		if !idx.seedSet[key] {
			idx.seedSet[key] = true
			idx.allSeeds = append(idx.allSeeds, s)
		}
	}
}

// recomputeMatches refreshes matching_seeds[case] for every case, needed
// because a newly merged seed (most often an Inequality split) can change
// which existing cases it falls under.
func (idx *criterionIndex) recomputeMatches() {
	for _, caseID := range idx.caseOrder {
		c := idx.byCase[caseID]
		idx.matchSeeds[caseID] = c.MatchingSeeds(idx.allSeeds)
	}
}

// CasesFor returns, in insertion order, the cases whose criterion contains
// seed.
func (idx *criterionIndex) CasesFor(seed Seed) []int {
	var out []int
	for _, caseID := range idx.caseOrder {
		for _, s := range idx.matchSeeds[caseID] {
			if seedKey(s) == seedKey(seed) {
				out = append(out, caseID)
				break
			}
		}
	}
	return out
}

// CountFor is the number of cases that apply at seed — the quantity
// best_split minimizes the maximum of, across the surviving seeds.
func (idx *criterionIndex) CountFor(seed Seed) int { return len(idx.CasesFor(seed)) }

// Seeds returns the index's seed list in a deterministic order, ready to
// drive best_split's per-branch iteration.
func (idx *criterionIndex) Seeds() []Seed {
	out := append([]Seed(nil), idx.allSeeds...)
	sort.Slice(out, func(i, j int) bool { return seedKey(out[i]) < seedKey(out[j]) })
	return out
}

// seedKey renders any seed value to a stable, comparable string: reflect.Type
// seeds (Class/Subclass/Protocol) print as their Go type name, rangeKey
// seeds print as their bounds, everything else falls back to %#v.
func seedKey(s Seed) string {
	switch v := s.(type) {
	case reflect.Type:
		if v == nil {
			return "<nil-type>"
		}
		return "type:" + v.String()
	case rangeKey:
		return fmt.Sprintf("range:%v..%v", v.Lo, v.Hi)
	case IdentityHandle:
		return fmt.Sprintf("identity:%v", v.ptr)
	default:
		return fmt.Sprintf("%#v", v)
	}
}
