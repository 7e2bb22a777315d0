package covenant

import (
	"sort"

	"github.com/vulpemventures/go-elements/taproot"
)

// sharedCoinTree builds the balanced Taproot tree over the shared pool
// output. Stakeholder leaves are stable-sorted on descending amount and
// handed, with the ASP claim leaf last, to the Taproot assembler, which
// pairs leaves in that order into a balanced tree. Amounts therefore
// decide only the order of the leaves, not their depth.
// The contract that matters for validation is determinism: the same
// ordered stakeholder list must always produce the same Merkle root and
// leaf paths, which a stable sort over a fixed input slice guarantees.
func sharedCoinTree(
	stakeholders []Stakeholder,
	stakeholderLeaves []*taproot.TapElementsLeaf,
	claimLeaf *taproot.TapElementsLeaf,
) (*taproot.IndexedElementsTapScriptTree, error) {
	order := make([]int, len(stakeholders))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return stakeholders[order[a]].Amount > stakeholders[order[b]].Amount
	})

	leaves := make([]taproot.TapElementsLeaf, 0, len(stakeholders)+1)
	for _, idx := range order {
		leaves = append(leaves, *stakeholderLeaves[idx])
	}
	leaves = append(leaves, *claimLeaf)

	return taproot.AssembleTaprootScriptTree(leaves...), nil
}
