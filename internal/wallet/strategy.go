package wallet

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// Selector picks the index of one wallet from a non-empty slice of
// snapshots given in insertion order.
type Selector interface {
	Name() string
	Select(wallets []domain.WalletSummary) int
}

// roundRobin cycles a shared index over the wallets, wrapping.
type roundRobin struct {
	mu   sync.Mutex
	next int
}

func (r *roundRobin) Name() string { return string(domain.WalletRoundRobin) }

func (r *roundRobin) Select(wallets []domain.WalletSummary) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.next % len(wallets)
	r.next = (i + 1) % len(wallets)
	return i
}

// highestBalance picks the largest USDC balance; the first wins ties.
type highestBalance struct{}

func (highestBalance) Name() string { return string(domain.WalletHighestBalance) }

func (highestBalance) Select(wallets []domain.WalletSummary) int {
	best := 0
	for i := 1; i < len(wallets); i++ {
		if wallets[i].USDCBalance > wallets[best].USDCBalance {
			best = i
		}
	}
	return best
}

// leastUsed picks the fewest total trades; the first wins ties.
type leastUsed struct{}

func (leastUsed) Name() string { return string(domain.WalletLeastUsed) }

func (leastUsed) Select(wallets []domain.WalletSummary) int {
	best := 0
	for i := 1; i < len(wallets); i++ {
		if wallets[i].TotalTrades < wallets[best].TotalTrades {
			best = i
		}
	}
	return best
}

// random picks uniformly.
type random struct {
	intn func(int) int
}

func (random) Name() string { return string(domain.WalletRandom) }

func (r random) Select(wallets []domain.WalletSummary) int {
	return r.intn(len(wallets))
}

// Registry holds named selectors for selection by config.
type Registry struct {
	selectors map[string]func() Selector
	mu        sync.RWMutex
}

// NewRegistry returns a registry with the four built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{selectors: make(map[string]func() Selector)}
	r.Register(string(domain.WalletRoundRobin), func() Selector { return &roundRobin{} })
	r.Register(string(domain.WalletHighestBalance), func() Selector { return highestBalance{} })
	r.Register(string(domain.WalletLeastUsed), func() Selector { return leastUsed{} })
	r.Register(string(domain.WalletRandom), func() Selector { return random{intn: rand.IntN} })
	return r
}

// Register adds a selector constructor under the given name.
func (r *Registry) Register(name string, newSelector func() Selector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selectors[name] = newSelector
}

// New returns a fresh selector by name, or an error if not found.
func (r *Registry) New(name string) (Selector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.selectors[name]
	if !ok {
		return nil, fmt.Errorf("wallet strategy %q not found (valid: %v)", name, r.namesLocked())
	}
	return f(), nil
}

// List returns all registered strategy names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.selectors))
	for n := range r.selectors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
