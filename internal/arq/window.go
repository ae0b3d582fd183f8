package arq

// The sequence space is the full uint16 range and wraps modulo 65536.
// Distances are measured forward; anything more than half the space away
// is treated as behind.
const seqHalf = 1 << 15

// seqDist returns the forward modular distance from a to b.
func seqDist(a, b uint16) int {
	return int(b - a)
}

// seqBehind reports whether seq falls behind base in modular order.
func seqBehind(base, seq uint16) bool {
	return seqDist(base, seq) >= seqHalf
}

// inWindow reports whether seq falls inside [base, base+size).
func inWindow(base, seq uint16, size int) bool {
	return seqDist(base, seq) < size
}
