package core

// BlankURL is the address of an empty document and of documents loaded
// from markup.
const BlankURL = "about:blank"

// HistoryEntry is one history item. Data entries replay their markup
// instead of fetching URL.
type HistoryEntry struct {
	URL    string
	Data   string
	IsData bool
}

// History is a view's back/forward list. It is not safe for concurrent
// use; views guard it with their own lock.
type History struct {
	entries []HistoryEntry
	index   int
}

// Push records e as the current entry, discarding forward history.
func (h *History) Push(e HistoryEntry) {
	if len(h.entries) > 0 {
		h.entries = h.entries[:h.index+1]
	}
	h.entries = append(h.entries, e)
	h.index = len(h.entries) - 1
}

// Current returns the current entry.
func (h *History) Current() (HistoryEntry, bool) {
	if len(h.entries) == 0 {
		return HistoryEntry{}, false
	}
	return h.entries[h.index], true
}

// CanGo reports whether Move(delta) would succeed.
func (h *History) CanGo(delta int) bool {
	i := h.index + delta
	return len(h.entries) > 0 && i >= 0 && i < len(h.entries)
}

// Move shifts the cursor by delta and returns the new current entry.
func (h *History) Move(delta int) (HistoryEntry, bool) {
	if !h.CanGo(delta) {
		return HistoryEntry{}, false
	}
	h.index += delta
	return h.entries[h.index], true
}
