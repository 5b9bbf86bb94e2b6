package swkernel

import "unsafe"

// int16View reinterprets a byte slice's backing array as []int16, the way
// fusion/kmer_index.go overlays its mmap-backed table with a typed slice
// header instead of copying.
func int16View(b []byte) []int16 {
	if len(b) == 0 {
		return nil
	}
	n := len(b) / 2
	return unsafe.Slice((*int16)(unsafe.Pointer(&b[0])), n)
}
