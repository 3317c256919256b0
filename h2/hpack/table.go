package hpack

// dynamicTable is the bounded ring of (name, value) entries shared
// independently by a reader and a writer, as described in spec §3.
// Index 62 refers to the most-recently-inserted entry, 63 the one before
// it, and so on (RFC 7541 section 2.3.2) — i.e. entries are numbered in
// reverse insertion order starting right after the static table.
type dynamicTable struct {
	// ents is ordered oldest-first; the most recent entry is the last
	// element, so eviction (oldest first) pops from the front.
	ents []HeaderField
	size uint32 // sum of HeaderField.Size() over ents
	cap  uint32 // current capacity (<= max)
}

func (t *dynamicTable) setCapacity(cap uint32) {
	t.cap = cap
	t.evictTo(cap)
}

// evictTo evicts oldest entries until size <= target.
func (t *dynamicTable) evictTo(target uint32) {
	for t.size > target && len(t.ents) > 0 {
		t.size -= t.ents[0].Size()
		t.ents = t.ents[1:]
	}
	if len(t.ents) == 0 {
		t.size = 0
	}
}

// insert adds hf to the table, evicting oldest entries first. If hf alone
// is larger than the table's capacity, the table ends up empty and hf is
// not added — invariant 7 / spec §4.5 eviction rule — but the caller is
// still responsible for transmitting/emitting the header itself.
func (t *dynamicTable) insert(hf HeaderField) {
	sz := hf.Size()
	if sz > t.cap {
		t.ents = t.ents[:0]
		t.size = 0
		return
	}
	t.evictTo(t.cap - sz)
	t.ents = append(t.ents, hf)
	t.size += sz
}

// len returns the number of entries currently in the table.
func (t *dynamicTable) len() int { return len(t.ents) }

// at returns the dynamic-table entry for 1-based HPACK index idx (where
// idx 1 is the most recent entry and idx == len(t.ents) the oldest,
// matching RFC 7541's numbering once offset by the static table). ok is
// false if idx is out of range.
func (t *dynamicTable) at(idx int) (HeaderField, bool) {
	if idx < 1 || idx > len(t.ents) {
		return HeaderField{}, false
	}
	// idx 1 is the most recent (last in ents); idx len(ents) is oldest.
	return t.ents[len(t.ents)-idx], true
}

// find returns the smallest dynamic-table HPACK index (1-based, most
// recent first) matching name (and optionally value). Used by the
// encoder to prefer the most-recently-used synonym, matching typical
// HPACK encoder behavior.
func (t *dynamicTable) find(name, value string) (idx int, nameOnly int) {
	for i := len(t.ents) - 1; i >= 0; i-- {
		hf := t.ents[i]
		if hf.Name != name {
			continue
		}
		hpackIdx := len(t.ents) - i
		if nameOnly == 0 {
			nameOnly = hpackIdx
		}
		if hf.Value == value {
			return hpackIdx, nameOnly
		}
	}
	return 0, nameOnly
}
