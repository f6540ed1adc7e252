package processor

import (
	"errors"

	"github.com/alitto/pond/v2"
	"github.com/sat20-labs/cohortd/indexer/indexer/rangelookup"
)

// forEachChunk runs fn over [0,n) split into chunks on the pool and returns
// the first error by chunk order.
func (p *Processor) forEachChunk(n int, fn func(chunk, lo, hi int) error) error {
	if n == 0 {
		return nil
	}
	chunks := (n + p.chunkSize - 1) / p.chunkSize
	errs := make([]error, chunks)

	group := p.pool.NewGroup()
	for c := 0; c < chunks; c++ {
		lo := c * p.chunkSize
		hi := min(lo+p.chunkSize, n)
		group.Submit(func() {
			errs[c] = fn(c, lo, hi)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, pond.ErrGroupStopped) {
		return err
	}
	return errors.Join(errs...)
}

// takeLookup returns an idle worker lookup following p.lookup, or a new
// fork when every kept one is in use.
func (p *Processor) takeLookup() *rangelookup.Lookup {
	select {
	case l := <-p.forks:
		l.Follow(p.lookup)
		return l
	default:
		return p.lookup.Fork()
	}
}

// releaseLookup keeps l for the next block unless enough are kept already.
func (p *Processor) releaseLookup(l *rangelookup.Lookup) {
	select {
	case p.forks <- l:
	default:
	}
}
