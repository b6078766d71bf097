package pack

// windowLen is the byte width of the rolling windows hashed by both the
// similarity estimator and the delta encoder's match index.
const windowLen = 4

// scanChunkSize bounds how much of an input the estimator walks per
// iteration so that peak working set tracks the chunk, not the object.
const scanChunkSize = 64 * 1024

// Similarity estimates, in [0,1], how much delta-compression benefit
// pairing a with b would yield. It only ranks base candidates; hash
// collisions may over-count without affecting reconstruction correctness.
func Similarity(a, b []byte) float64 {
	if len(a) == 0 || len(b) == 0 {
		if len(a) == 0 && len(b) == 0 {
			return 1
		}
		return 0
	}

	if len(a) < windowLen || len(b) < windowLen {
		return shortSimilarity(a, b)
	}

	seen := make(map[uint32]struct{}, len(a)-windowLen+1)
	for start := 0; start < len(a); start += scanChunkSize {
		end := start + scanChunkSize + windowLen - 1
		if end > len(a) {
			end = len(a)
		}
		chunk := a[start:end]
		for i := 0; i+windowLen <= len(chunk); i++ {
			seen[windowHash(chunk[i:i+windowLen])] = struct{}{}
		}
	}

	hits := 0
	for i := 0; i+windowLen <= len(b); i++ {
		if _, ok := seen[windowHash(b[i : i+windowLen])]; ok {
			hits++
		}
	}

	windowsA := len(a) - windowLen + 1
	windowsB := len(b) - windowLen + 1
	max := windowsA
	if windowsB > max {
		max = windowsB
	}
	return float64(hits) / float64(max)
}

// shortSimilarity handles inputs below the window width: positional byte
// equality over the shorter input, scaled down by the longer length.
func shortSimilarity(a, b []byte) float64 {
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	matches := 0
	for i := range short {
		if short[i] == long[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(long))
}

// windowHash is an FNV-1a style mix over one 4-byte window.
func windowHash(w []byte) uint32 {
	h := uint32(2166136261)
	for _, c := range w {
		h ^= uint32(c)
		h *= 16777619
	}
	return h
}
