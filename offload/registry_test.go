package offload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAcquireLookupRelease(t *testing.T) {
	r := newRegistry(4)
	a := &Action{tag: OpOpen}

	tok := r.acquire(a)
	require.Same(t, a, r.lookup(tok))

	r.release(tok)
	assert.Nil(t, r.lookup(tok), "lookup after release")
}

func TestRegistryReusesFreedSlots(t *testing.T) {
	r := newRegistry(1)
	a1 := &Action{tag: OpOpen}
	a2 := &Action{tag: OpClose}

	tok1 := r.acquire(a1)
	r.release(tok1)

	tok2 := r.acquire(a2)
	assert.Equal(t, tok1, tok2, "freed slot should be reused")
	assert.Same(t, a2, r.lookup(tok2))
}

func TestRegistryLookupUnknownTokenIsNil(t *testing.T) {
	r := newRegistry(4)
	assert.Nil(t, r.lookup(999))
}
