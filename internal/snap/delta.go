package snap

import (
	"encoding/binary"
	"errors"
)

// The delta format is a run-length scheme over the new snapshot relative to
// the baseline: uvarint new length, then alternating (same-run, diff-run,
// literal bytes) segments. Same runs copy from the baseline at the same
// offset; reads past the end of the baseline yield zero bytes. The format is
// deterministic for a given (base, new) pair, which the fan-out test relies
// on.

// ErrBadPatch is returned when a patch is malformed or inconsistent with the
// baseline it is applied to.
var ErrBadPatch = errors.New("snap: malformed patch")

// Diff computes a binary patch that transforms base into next.
func Diff(base, next []byte) []byte {
	patch := binary.AppendUvarint(nil, uint64(len(next)))

	baseAt := func(i int) byte {
		if i < len(base) {
			return base[i]
		}
		return 0
	}

	i := 0
	for i < len(next) {
		same := 0
		for i+same < len(next) && next[i+same] == baseAt(i+same) {
			same++
		}
		diff := 0
		for i+same+diff < len(next) && next[i+same+diff] != baseAt(i+same+diff) {
			diff++
		}
		patch = binary.AppendUvarint(patch, uint64(same))
		patch = binary.AppendUvarint(patch, uint64(diff))
		patch = append(patch, next[i+same:i+same+diff]...)
		i += same + diff
	}
	return patch
}

// Apply reconstructs the new snapshot from base and patch.
func Apply(base, patch []byte) ([]byte, error) {
	newLen, n := binary.Uvarint(patch)
	if n <= 0 {
		return nil, ErrBadPatch
	}
	patch = patch[n:]

	out := make([]byte, 0, newLen)
	for uint64(len(out)) < newLen {
		same, n := binary.Uvarint(patch)
		if n <= 0 {
			return nil, ErrBadPatch
		}
		patch = patch[n:]
		diff, n := binary.Uvarint(patch)
		if n <= 0 {
			return nil, ErrBadPatch
		}
		patch = patch[n:]

		if uint64(len(out))+same+diff > newLen || diff > uint64(len(patch)) {
			return nil, ErrBadPatch
		}
		for i := uint64(0); i < same; i++ {
			off := len(out)
			if off < len(base) {
				out = append(out, base[off])
			} else {
				out = append(out, 0)
			}
		}
		out = append(out, patch[:diff]...)
		patch = patch[diff:]
	}
	if len(patch) != 0 {
		return nil, ErrBadPatch
	}
	return out, nil
}
