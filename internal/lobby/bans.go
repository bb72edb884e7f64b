package lobby

import "slices"

// BanList holds the persistent ids the host has banned from the current
// lobby. Entries are never removed; the list goes away with the lobby.
type BanList struct {
	ids []string
}

// Add reports whether id was newly added.
func (b *BanList) Add(id string) bool {
	if id == "" || b.Contains(id) {
		return false
	}
	b.ids = append(b.ids, id)
	return true
}

func (b *BanList) Contains(id string) bool { return slices.Contains(b.ids, id) }

func (b *BanList) List() []string { return slices.Clone(b.ids) }

func (b *BanList) Len() int { return len(b.ids) }
