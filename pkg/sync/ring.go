package sync

import (
	"encoding/binary"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/spaolacci/murmur3"
)

// ring consistently maps keys onto stripe indices using murmur3 points on a
// sorted ring. Each stripe owns replicationFactor points.
type ring struct {
	points *treemap.Map

	// first is the stripe at the lowest point, which keys hashing past the
	// highest point wrap around to.
	first int
}

func newRing(stripes int, replicationFactor uint) *ring {
	points := treemap.NewWith(utils.Int64Comparator)

	var seed [8]byte
	for stripe := 0; stripe < stripes; stripe++ {
		binary.LittleEndian.PutUint64(seed[:], uint64(stripe))
		base, _ := murmur3.Sum128(seed[:])

		var point [12]byte
		binary.LittleEndian.PutUint64(point[:8], base)
		for i := uint(0); i < replicationFactor; i++ {
			binary.LittleEndian.PutUint32(point[8:], uint32(i))
			hash := murmur3.Sum64(point[:])
			points.Put(int64(hash), stripe)
		}
	}

	r := &ring{points: points}
	if _, first := points.Min(); first != nil {
		r.first = first.(int)
	}
	return r
}

func (r *ring) shard(key []byte) int {
	hash := int64(murmur3.Sum64(key))
	if _, stripe := r.points.Ceiling(hash); stripe != nil {
		return stripe.(int)
	}
	return r.first
}
