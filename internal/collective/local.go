package collective

import "fmt"

// NewLocalGroup returns n in-process ranks sharing one Hub. Each member must
// be driven by its own goroutine.
func NewLocalGroup(n int) ([]Channel, error) {
	if n <= 0 {
		return nil, fmt.Errorf("local group needs at least one rank, got %d", n)
	}
	hub := NewHub(n)
	members := make([]Channel, n)
	for rank := range members {
		members[rank] = NewMember(hub, rank, n, nil)
	}
	return members, nil
}
