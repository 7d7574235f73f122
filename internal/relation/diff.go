package relation

// ChangeKind tags how a relation differs from its persisted constraint.
type ChangeKind int

const (
	Unchanged ChangeKind = iota
	Added
	Removed
	Updated
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Change is the resolved state of one relation. From is the persisted
// version (nil for Added), To the edited one (nil only when the constraint
// was not in the draft).
type Change struct {
	Kind ChangeKind
	From *ForeignKey
	To   *ForeignKey
}

// Changes is the outcome of Diff.
type Changes []Change

// Diff resolves the edited relations against the persisted ones:
//   - a draft id is Added, or dropped silently when also marked ToRemove;
//   - an existing id marked ToRemove is Removed;
//   - an existing id that differs structurally is Updated;
//   - an existing id whose constraint no longer exists is Added again.
//
// Persisted constraints absent from edited are Unchanged.
func Diff(edited, existing []ForeignKey) Changes {
	byID := make(map[int64]int, len(existing))
	for i, fk := range existing {
		if id, ok := fk.ID.Existing(); ok {
			byID[id] = i
		}
	}
	seen := make(map[int64]bool, len(edited))

	var changes Changes
	for i := range edited {
		to := edited[i]
		id, persisted := to.ID.Existing()
		if !persisted {
			if !to.ToRemove {
				changes = append(changes, Change{Kind: Added, To: &to})
			}
			continue
		}

		idx, found := byID[id]
		if !found {
			if !to.ToRemove {
				changes = append(changes, Change{Kind: Added, To: &to})
			}
			continue
		}
		seen[id] = true
		from := existing[idx]

		switch {
		case to.ToRemove:
			changes = append(changes, Change{Kind: Removed, From: &from, To: &to})
		case !to.Equal(from):
			changes = append(changes, Change{Kind: Updated, From: &from, To: &to})
		default:
			changes = append(changes, Change{Kind: Unchanged, From: &from, To: &to})
		}
	}

	for i := range existing {
		from := existing[i]
		if id, ok := from.ID.Existing(); ok && seen[id] {
			continue
		}
		changes = append(changes, Change{Kind: Unchanged, From: &from})
	}
	return changes
}

// Added returns relations to create.
func (c Changes) Added() []ForeignKey {
	var out []ForeignKey
	for _, ch := range c {
		if ch.Kind == Added {
			out = append(out, *ch.To)
		}
	}
	return out
}

// Removed returns relations to drop, carrying the persisted constraint name.
func (c Changes) Removed() []ForeignKey {
	var out []ForeignKey
	for _, ch := range c {
		if ch.Kind == Removed {
			out = append(out, withPersistedName(ch))
		}
	}
	return out
}

// Updated returns relations to recreate, carrying the persisted constraint
// name so the drop targets the existing constraint.
func (c Changes) Updated() []ForeignKey {
	var out []ForeignKey
	for _, ch := range c {
		if ch.Kind == Updated {
			out = append(out, withPersistedName(ch))
		}
	}
	return out
}

// Pending reports whether any relation needs DDL.
func (c Changes) Pending() bool {
	for _, ch := range c {
		if ch.Kind != Unchanged {
			return true
		}
	}
	return false
}

func withPersistedName(ch Change) ForeignKey {
	fk := *ch.To
	if ch.From != nil && ch.From.Name != "" {
		fk.Name = ch.From.Name
	}
	return fk
}
