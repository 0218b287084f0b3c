// Package packpool recycles the byte slices packed IGTL messages are
// written into. Image messages are large and produced at frame rate, so
// allocating a fresh slice per frame keeps the garbage collector busy.
package packpool

import (
	"slices"
	"sort"
	"sync"

	"github.com/go-pantheon/fabrica-util/errors"
)

var (
	ErrClassesRequired  = errors.New("size classes must not be empty")
	ErrClassesNotSorted = errors.New("size classes must be sorted in ascending order")
)

// DefaultClasses covers tracking messages up to 16MB volumes.
var DefaultClasses = []int{4 << 10, 64 << 10, 256 << 10, 1 << 20, 4 << 20, 16 << 20}

// Pool is a set of sync.Pools, one per size class. Requests larger than the
// biggest class are allocated directly and never pooled.
type Pool struct {
	pools   []sync.Pool
	classes []int
}

// New creates a pool with the given ascending size classes.
func New(classes []int) (*Pool, error) {
	if len(classes) == 0 {
		return nil, ErrClassesRequired
	}

	for i := 1; i < len(classes); i++ {
		if classes[i] <= classes[i-1] {
			return nil, ErrClassesNotSorted
		}
	}

	p := &Pool{
		pools:   make([]sync.Pool, len(classes)),
		classes: slices.Clone(classes),
	}

	for i, size := range p.classes {
		p.pools[i].New = func() any {
			buf := make([]byte, size)
			return &buf
		}
	}

	return p, nil
}

// Default returns a pool built from DefaultClasses.
func Default() *Pool {
	p, err := New(DefaultClasses)
	if err != nil {
		panic("packpool: invalid default classes: " + err.Error())
	}

	return p
}

func (p *Pool) class(size int) int {
	return sort.SearchInts(p.classes, size)
}

// Alloc returns a slice of length size.
func (p *Pool) Alloc(size int) []byte {
	if size <= 0 {
		return nil
	}

	i := p.class(size)
	if i >= len(p.classes) {
		return make([]byte, size)
	}

	buf := p.pools[i].Get().(*[]byte)

	return (*buf)[:size]
}

// Free hands buf back. Slices that did not come from Alloc are dropped.
func (p *Pool) Free(buf []byte) {
	c := cap(buf)

	i := p.class(c)
	if i >= len(p.classes) || p.classes[i] != c {
		return
	}

	buf = buf[:c]
	p.pools[i].Put(&buf)
}

// Classes returns a copy of the size classes.
func (p *Pool) Classes() []int {
	return slices.Clone(p.classes)
}
