package swkernel

import "github.com/alpae/clustermerge/internal/env"

// Traceback runs a bounded affine-gap global (Gotoh) alignment over the
// window [query, db) already located by Locate, recovering the aligned
// string pair. The window is small relative to the full sequences (it is
// the local alignment's own span), so a full O(n*m) DP here is cheap —
// unlike the striped kernel, this path is only ever run once per accepted
// alignment, not once per candidate pair.
func Traceback(query, db []byte, e *env.Environment) (alignedQuery, alignedDB []byte) {
	m, n := len(query), len(db)
	if m == 0 || n == 0 {
		return nil, nil
	}
	gapOpen := e.GapOpen
	gapExt := e.GapExtend
	const negInf = -1e18

	h := make([][]float64, m+1)
	eMat := make([][]float64, m+1) // gap in db (horizontal)
	fMat := make([][]float64, m+1) // gap in query (vertical)
	for i := range h {
		h[i] = make([]float64, n+1)
		eMat[i] = make([]float64, n+1)
		fMat[i] = make([]float64, n+1)
	}
	for i := 1; i <= m; i++ {
		h[i][0] = gapOpen + float64(i-1)*gapExt
		eMat[i][0] = negInf
		fMat[i][0] = negInf
	}
	for j := 1; j <= n; j++ {
		h[0][j] = gapOpen + float64(j-1)*gapExt
		eMat[0][j] = negInf
		fMat[0][j] = negInf
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			eMat[i][j] = max2(eMat[i][j-1]+gapExt, h[i][j-1]+gapOpen)
			fMat[i][j] = max2(fMat[i-1][j]+gapExt, h[i-1][j]+gapOpen)
			diag := h[i-1][j-1] + e.Matrix.At(query[i-1], db[j-1])
			h[i][j] = max3(diag, eMat[i][j], fMat[i][j])
		}
	}

	var aq, ad []byte
	i, j := m, n
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && h[i][j] == h[i-1][j-1]+e.Matrix.At(query[i-1], db[j-1]):
			aq = append(aq, query[i-1])
			ad = append(ad, db[j-1])
			i--
			j--
		case i > 0 && h[i][j] == fMat[i][j]:
			aq = append(aq, query[i-1])
			ad = append(ad, '-')
			i--
		case j > 0 && h[i][j] == eMat[i][j]:
			aq = append(aq, '-')
			ad = append(ad, db[j-1])
			j--
		default:
			// Numerical tie-break safeguard; prefer consuming both.
			if i > 0 {
				aq = append(aq, query[i-1])
				i--
			}
			if j > 0 {
				ad = append(ad, db[j-1])
				j--
			}
		}
	}
	reverseInPlace(aq)
	reverseInPlace(ad)
	return aq, ad
}

func max2(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func max3(a, b, c float64) float64 {
	return max2(a, max2(b, c))
}

func reverseInPlace(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
