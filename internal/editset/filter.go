package editset

// Filter returns a new editset with the selection narrowed. It never mutates
// its input.
//
// If include is non-nil, exactly the refs whose id appears in it become
// selected; every other ref becomes unselected, overriding prior state. If
// exclude is non-nil it is applied after inclusion as a subtraction, so a ref
// named by both ends up unselected.
//
// Edits are then recomputed as the subset of the original edits whose file is
// the file of some selected ref. The recomputation is file-grained on
// purpose: deselecting one ref in a file does not remove other edits sharing
// that file.
func Filter(es *Editset, include, exclude []string) *Editset {
	out := *es
	out.Refs = make([]Reference, len(es.Refs))
	copy(out.Refs, es.Refs)

	if include != nil {
		wanted := toSet(include)
		for i := range out.Refs {
			out.Refs[i].Selected = wanted[out.Refs[i].RefID]
		}
	}
	if exclude != nil {
		dropped := toSet(exclude)
		for i := range out.Refs {
			if dropped[out.Refs[i].RefID] {
				out.Refs[i].Selected = false
			}
		}
	}

	selectedFiles := make(map[string]bool)
	for _, ref := range out.Refs {
		if ref.Selected {
			selectedFiles[ref.File] = true
		}
	}
	out.Edits = make([]Edit, 0, len(es.Edits))
	for _, e := range es.Edits {
		if selectedFiles[e.File] {
			out.Edits = append(out.Edits, e)
		}
	}
	return &out
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
