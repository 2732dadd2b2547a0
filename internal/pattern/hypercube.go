package pattern

import (
	"fmt"
	"math/bits"
	"math/rand/v2"

	"fortio.org/safecast"

	"github.com/scttfrdmn/collective-traffic-gen/internal/errors"
	"github.com/scttfrdmn/collective-traffic-gen/internal/types"
)

// Hypercube emits a recursive halving pass followed by the mirrored doubling
// pass. Groups that are not a power of two are padded with members drawn
// from rng. Round r exchanges msgLen/2^r bytes between partners 2^(r-1) apart.
func Hypercube(hosts []int, msgLen int64, port int, forward bool, rng *rand.Rand) ([]types.Phase, error) {
	if len(hosts) == 0 {
		return nil, nil
	}

	padded, err := padToPowerOfTwo(hosts, rng)
	if err != nil {
		return nil, err
	}
	size := len(padded)
	rounds := bits.TrailingZeros(uint(size))

	halving := make([]types.Phase, 0, rounds)
	for r := 1; r <= rounds; r++ {
		msg := msgLen >> r
		phase := make(types.Phase, 0, size)
		for idx, host := range padded {
			nei, err := neighbor(idx, size, r)
			if err != nil {
				return nil, err
			}
			phase = append(phase, types.NewDescriptor(host, padded[nei], port, msg, forward))
		}
		halving = append(halving, phase)
	}

	phases := make([]types.Phase, 0, 2*rounds)
	phases = append(phases, halving...)
	for i := len(halving) - 1; i >= 0; i-- {
		phases = append(phases, halving[i])
	}
	return phases, nil
}

func padToPowerOfTwo(hosts []int, rng *rand.Rand) ([]int, error) {
	n, err := safecast.Conv[uint](len(hosts))
	if err != nil {
		return nil, errors.NewAlgorithmError("Hypercube", err.Error())
	}
	target := n
	if n&(n-1) != 0 {
		target = 1 << bits.Len(n)
	}

	padded := make([]int, len(hosts), target)
	copy(padded, hosts)
	for uint(len(padded)) < target {
		if rng == nil {
			return nil, errors.NewAlgorithmError("Hypercube",
				fmt.Sprintf("group of %d hosts needs padding but no random source is set", len(hosts)))
		}
		padded = append(padded, hosts[rng.IntN(len(hosts))])
	}
	return padded, nil
}

// neighbor returns the round-r partner of idx in a group of num members.
func neighbor(idx, num, r int) (int, error) {
	span := 1 << (r - 1)
	left, right := idx-span, idx+span
	if left < 0 {
		return right, nil
	}
	if right > num-1 {
		return left, nil
	}
	block := idx >> r
	if left>>r == block {
		return left, nil
	}
	if right>>r == block {
		return right, nil
	}
	return 0, errors.NewAlgorithmError("Hypercube",
		fmt.Sprintf("no neighbor for index %d in group of %d at round %d", idx, num, r))
}
