package detector

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/avask/arbot/internal/domain"
)

// Fingerprint derives the deterministic identity of a detected divergence:
// same pair, same venue direction, same spread bucket, same time bucket.
// Opportunities that differ only in notional rounding or sub-bucket price
// noise share a fingerprint and are deduplicated by the orchestrator.
func Fingerprint(opp domain.Opportunity, priceBucket float64, window time.Duration) string {
	h := fnv.New64a()
	h.Write([]byte(opp.Pair))
	h.Write([]byte{0})
	h.Write([]byte(opp.BuyVenue))
	h.Write([]byte{0})
	h.Write([]byte(opp.SellVenue))
	h.Write([]byte{0})

	var buf [8]byte
	spreadBucket := int64(math.Floor(opp.GrossSpread() / priceBucket))
	binary.BigEndian.PutUint64(buf[:], uint64(spreadBucket))
	h.Write(buf[:])

	timeBucket := opp.DetectedAt.Truncate(window).Unix()
	binary.BigEndian.PutUint64(buf[:], uint64(timeBucket))
	h.Write(buf[:])

	return fmt.Sprintf("%016x", h.Sum64())
}
