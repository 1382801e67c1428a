package cluster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/Auchit011/Vistagram-Application/internal/shared/geo"
)

var ErrLockTimeout = errors.New("timed out waiting for cluster lock")

// Locker serialises detection runs whose neighbourhoods overlap. Lock acquires every key or
// none; the returned func releases them.
type Locker interface {
	Lock(ctx context.Context, keys []string) (unlock func(), err error)
}

// polarRowLat is where grid rows stop being split by longitude.
const polarRowLat = 80

// LockKeys returns the sorted lock keys covering every (place, time) a post at p created at t
// could cluster with. Two posts inside each other's distance and time window always share at
// least one key: the key of either post's own cell.
func LockKeys(p geo.Point, t time.Time, params Params) []string {
	params = params.withDefaults()
	cellDeg := 2 * params.MaxDistanceMeters / geo.MetresPerDegree
	bucket := 2 * params.TimeWindow

	from, to := params.Window(t)
	firstBucket := floorDiv(from.UnixNano(), int64(bucket))
	lastBucket := floorDiv(to.UnixNano(), int64(bucket))

	box := geo.BoundingBox(p, params.MaxDistanceMeters)
	minY := int(math.Floor(box.MinLat / cellDeg))
	maxY := int(math.Floor(box.MaxLat / cellDeg))

	var keys []string
	for y := minY; y <= maxY; y++ {
		for _, x := range columns(box, y, cellDeg) {
			for b := firstBucket; b <= lastBucket; b++ {
				keys = append(keys, fmt.Sprintf("%d:%d:%d", y, x, b))
			}
		}
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

// columns lists the longitude cells of row y that the box touches. Rows near the poles are a
// single cell so a point's own key never depends on how wide a neighbour's box is.
func columns(box geo.Box, y int, cellDeg float64) []int {
	rowLat := math.Max(math.Abs(float64(y)*cellDeg), math.Abs(float64(y+1)*cellDeg))
	if rowLat > polarRowLat {
		return []int{0}
	}
	span := func(lo, hi float64) []int {
		var xs []int
		for x := int(math.Floor(lo / cellDeg)); x <= int(math.Floor(hi/cellDeg)); x++ {
			xs = append(xs, x)
		}
		return xs
	}
	if box.MinLng <= box.MaxLng {
		return span(box.MinLng, box.MaxLng)
	}
	return append(span(box.MinLng, 180), span(-180, box.MaxLng)...)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// LocalLocker is a Locker for a single process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

// Lock takes keys in sorted order, so two callers with overlapping key sets cannot deadlock.
func (l *LocalLocker) Lock(ctx context.Context, keys []string) (func(), error) {
	keys = slices.Compact(slices.Sorted(slices.Values(keys)))

	held := make([]*slot, 0, len(keys))
	for _, k := range keys {
		s := l.acquire(k)
		select {
		case s.ch <- struct{}{}:
			held = append(held, s)
		case <-ctx.Done():
			l.release(keys[:len(held)], held)
			l.drop(k)
			return nil, fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(keys, held) })
	}, nil
}

func (l *LocalLocker) acquire(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) release(keys []string, held []*slot) {
	for i, s := range held {
		<-s.ch
		l.drop(keys[i])
	}
}

func (l *LocalLocker) drop(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slots[key]
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
