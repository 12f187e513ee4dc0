package community

import "testing"

func TestMillisProviderIsStrictlyIncreasing(t *testing.T) {
	provider := NewMillisProvider()

	previous := provider.NewID()
	for i := 0; i < 1000; i++ {
		next := provider.NewID()
		if next <= previous {
			t.Fatalf("id %d not greater than previous %d", next, previous)
		}
		previous = next
	}
}
