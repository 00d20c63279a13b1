package offload

// registry maps an *Action to a small uint32 token and back. Workers
// signal completion by writing a token onto the response channel; the
// response fiber reads the token and looks the Action back up. The
// indirection exists because a raw pointer cannot safely cross a byte
// stream in a garbage-collected runtime; a slab index with a free list
// carries the same information.
//
// Tokens are acquired by submitters and looked up and released by the
// response fiber: wire-thread code on both sides, mutually serialised
// by the cooperative discipline, so the registry holds no lock. Workers
// only ever carry a token value inside an Action they own exclusively.
type registry struct {
	slab []*Action
	free []uint32
}

func newRegistry(capacityHint int) *registry {
	return &registry{
		slab: make([]*Action, 0, capacityHint),
		free: make([]uint32, 0, capacityHint),
	}
}

// acquire assigns a as the next free slot and returns its token.
func (r *registry) acquire(a *Action) uint32 {
	if n := len(r.free); n > 0 {
		tok := r.free[n-1]
		r.free = r.free[:n-1]
		r.slab[tok] = a
		return tok
	}

	tok := uint32(len(r.slab))
	r.slab = append(r.slab, a)
	return tok
}

// lookup returns the Action registered under tok, or nil if the token is
// stale (already released). A stale lookup is always a bug elsewhere in
// this package, never an expected runtime condition.
func (r *registry) lookup(tok uint32) *Action {
	if int(tok) >= len(r.slab) {
		return nil
	}
	return r.slab[tok]
}

// release returns tok to the free list. The caller must not use tok again.
func (r *registry) release(tok uint32) {
	if int(tok) < len(r.slab) {
		r.slab[tok] = nil
	}
	r.free = append(r.free, tok)
}
