package services

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestProviderLocks_OppositeOrderDoesNotDeadlock(t *testing.T) {
	locks := NewProviderLocks()
	var counter int64

	var g errgroup.Group
	for i := 0; i < 200; i++ {
		keys := []string{providerKey("A"), providerKey("B")}
		if i%2 == 1 {
			keys = []string{providerKey("B"), providerKey("A")}
		}
		g.Go(func() error {
			unlock := locks.Lock(keys...)
			defer unlock()
			atomic.AddInt64(&counter, 1)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(200), counter)
	assert.Zero(t, locks.size())
}

func TestProviderLocks_DuplicateKeysLockOnce(t *testing.T) {
	locks := NewProviderLocks()

	unlock := locks.Lock(providerKey("A"), providerKey("A"), patientKey("p1"))
	assert.Equal(t, 2, locks.size())
	unlock()
	assert.Zero(t, locks.size())
}

func TestProviderLocks_ReadersShare(t *testing.T) {
	locks := NewProviderLocks()

	r1 := locks.RLock(providerKey("A"))
	r2 := locks.RLock(providerKey("A"))
	r1()
	r2()

	unlock := locks.Lock(providerKey("A"))
	unlock()
	assert.Zero(t, locks.size())
}

func TestSortedUnique_PatientKeysFirst(t *testing.T) {
	got := sortedUnique([]string{providerKey("b"), patientKey("z"), providerKey("a"), providerKey("b")})
	assert.Equal(t, []string{"patient:z", "provider:a", "provider:b"}, got)
}
