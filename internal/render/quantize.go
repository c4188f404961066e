package render

import "sync"

// cubeLevels are the channel values of the 6x6x6 colour cube at palette
// indices 16..231.
var cubeLevels = [6]int{0, 95, 135, 175, 215, 255}

// maxCacheEntries bounds the quantizer cache; it is cleared when exceeded.
const maxCacheEntries = 65536

// Quantize returns the xterm 256-colour index nearest to r,g,b, choosing
// between the colour cube and the 24 step grey ramp by squared distance.
func Quantize(r, g, b uint8) uint8 {
	ri, gi, bi := nearestLevel(int(r)), nearestLevel(int(g)), nearestLevel(int(b))
	cubeDist := sq(cubeLevels[ri]-int(r)) + sq(cubeLevels[gi]-int(g)) + sq(cubeLevels[bi]-int(b))
	best := 16 + 36*ri + 6*gi + bi
	bestDist := cubeDist
	for i := 0; i < 24; i++ {
		v := 8 + 10*i
		d := sq(v-int(r)) + sq(v-int(g)) + sq(v-int(b))
		if d < bestDist {
			best, bestDist = 232+i, d
		}
	}
	return uint8(best)
}

func nearestLevel(v int) int {
	best, bestDist := 0, 1<<30
	for i, l := range cubeLevels {
		if d := sq(l - v); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func sq(v int) int { return v * v }

// Quantizer memoizes Quantize. It is safe for concurrent use.
type Quantizer struct {
	mu    sync.Mutex
	cache map[uint32]uint8
}

// processQuantizer is shared by every cells renderer that is not given one,
// so the cache outlives renderer switches and sessions.
var processQuantizer = NewQuantizer()

func NewQuantizer() *Quantizer {
	return &Quantizer{cache: make(map[uint32]uint8)}
}

func (q *Quantizer) Index(r, g, b uint8) uint8 {
	key := uint32(r)<<16 | uint32(g)<<8 | uint32(b)
	q.mu.Lock()
	defer q.mu.Unlock()
	if idx, ok := q.cache[key]; ok {
		return idx
	}
	if len(q.cache) >= maxCacheEntries {
		clear(q.cache)
	}
	idx := Quantize(r, g, b)
	q.cache[key] = idx
	return idx
}

// Len returns the number of cached colours.
func (q *Quantizer) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.cache)
}
