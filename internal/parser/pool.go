// # internal/parser/pool.go
package parser

import (
	"sync"
	"time"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Pool hands out ready-to-use parsers for the grammar fixed at
// construction, sparing callers a fresh native parser per parse. Callers
// Get a parser and Put it back when done; both are safe for concurrent
// use.
type Pool struct {
	lang *sitter.Language
	pool sync.Pool

	// leases records the checkout time of every parser currently out.
	leases   map[*sitter.Parser]time.Time
	leasesMu sync.Mutex
}

// NewPool builds a pool over lang. The grammar must stay valid as long as
// the pool is in use.
func NewPool(lang *sitter.Language) *Pool {
	p := &Pool{
		lang:   lang,
		leases: make(map[*sitter.Parser]time.Time),
	}
	p.pool = sync.Pool{
		New: func() any {
			sp := sitter.NewParser()
			sp.SetLanguage(lang)
			return sp
		},
	}
	return p
}

// Get leases a parser, allocating one when the pool has none idle.
func (p *Pool) Get() *sitter.Parser {
	sp := p.pool.Get().(*sitter.Parser)
	// Reapply the grammar in case a previous holder changed it.
	sp.SetLanguage(p.lang)

	p.leasesMu.Lock()
	p.leases[sp] = time.Now()
	p.leasesMu.Unlock()

	return sp
}

// Put ends a lease. sp is reset before rejoining the idle set so the pool
// never pins a finished parse tree; the caller must not touch sp
// afterwards. A nil sp is ignored.
func (p *Pool) Put(sp *sitter.Parser) {
	if sp == nil {
		return
	}

	p.leasesMu.Lock()
	delete(p.leases, sp)
	p.leasesMu.Unlock()

	sp.Reset()
	p.pool.Put(sp)
}

// Stats reports how many parsers are currently leased.
func (p *Pool) Stats() int {
	p.leasesMu.Lock()
	defer p.leasesMu.Unlock()
	return len(p.leases)
}
