package ledger_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/loan-ledger/ledger"
)

func TestLocker_SerializesSameKey(t *testing.T) {
	lk := ledger.NewLocker()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := lk.Lock("08031234567")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
	assert.Equal(t, 0, lk.Len(), "entries are dropped once released")
}

func TestLocker_OppositeOrderDoesNotDeadlock(t *testing.T) {
	lk := ledger.NewLocker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			lk.Lock("a", "b")()
		}()
		go func() {
			defer wg.Done()
			lk.Lock("b", "a")()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, lk.Len())
}

func TestLocker_DuplicateKeys(t *testing.T) {
	lk := ledger.NewLocker()
	unlock := lk.Lock("a", "a")
	assert.Equal(t, 1, lk.Len())
	unlock()
	assert.Equal(t, 0, lk.Len())
}
