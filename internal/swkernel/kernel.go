package swkernel

// Result is the outcome of a score-only striped alignment pass.
type Result struct {
	Score     int32
	Saturated bool
	// DBEnd and QueryEnd are the 0-based db/query indices of the cell that
	// produced Score (the local alignment's end point), used by the
	// façade's reverse pass to locate the start point (spec.md §4.1,
	// "double alignment").
	DBEnd, QueryEnd int
}

const negInf = int32(-1 << 28)

// ScoreOnly runs the striped Smith-Waterman recurrence of spec.md §4.1
// against db using profile (already built for the query side) and returns
// the best local-alignment score. gapOpen and gapExt are both supplied as
// non-positive penalties (e.g. gapOpen=-10, gapExt=-1). When gapExt <=
// gapOpen the cheaper linear-gap recurrence is used (rd derived from opt on
// the fly); otherwise the affine recurrence maintains rd explicitly per
// spec.md §4.1.
//
// Each stripe update floors the cell at zero, matching true local-alignment
// restart semantics (as in IrdiZ-pgfp's reference kernel) — the swps3
// kernel this is grounded on a folds the floor into a zero-biased unsigned
// trick; this port makes the floor explicit instead, since Go's int32
// arithmetic has no need for the bias.
func ScoreOnly(profile *Profile, db []byte, gapOpen, gapExt int32) Result {
	segLen := profile.SegLen
	affine := gapExt > gapOpen

	loadOpt := make([][8]int32, segLen)
	storeOpt := make([][8]int32, segLen)
	var rd [][8]int32
	if affine {
		rd = make([][8]int32, segLen)
		for i := range rd {
			rd[i] = [8]int32{negInf, negInf, negInf, negInf, negInf, negInf, negInf, negInf}
		}
	}

	maxScore := int32(0)
	saturated := false
	dbEnd, queryEnd := -1, -1

	for j := 0; j < len(db); j++ {
		a := db[j]
		var cd [8]int32
		for k := range cd {
			cd[k] = negInf
		}

		loadOpt, storeOpt = storeOpt, loadOpt

		// diag holds, for lane k, the predecessor of stripe 0's row k*segLen:
		// the previous column's value at stripe segLen-1, lane k-1 (lane 0 gets
		// the synthetic top boundary 0, matching local-alignment restart
		// semantics). This is the cross-lane shift the SSE version performs
		// with a byte-shift + insert. loadOpt has just been swapped in above,
		// so it now holds column j-1's finished values.
		var diag [8]int32
		diag[0] = 0
		for k := 1; k < 8; k++ {
			diag[k] = loadOpt[segLen-1][k-1]
		}

		for i := 0; i < segLen; i++ {
			prevCol := loadOpt[i] // column j-1 at this stripe, becomes next diag
			profRow := profile.Row(int(a), i)

			var cell [8]int32
			for k := 0; k < 8; k++ {
				v := diag[k] + int32(profRow[k])
				if v > maxScore {
					maxScore = v
					dbEnd, queryEnd = j, i+k*segLen
				}
				if v < 0 {
					v = 0
				}
				if affine {
					nrd := rd[i][k] + gapExt
					fromUp := prevCol[k] + gapOpen
					if fromUp > nrd {
						nrd = fromUp
					}
					rd[i][k] = nrd
					if nrd > v {
						v = nrd
					}
				} else {
					fromUp := prevCol[k] + gapOpen
					if fromUp > v {
						v = fromUp
					}
				}
				if cd[k] > v {
					v = cd[k]
				}
				if v > MaxScore16 {
					v = MaxScore16
					saturated = true
				}
				cell[k] = v
				cd[k] = v + gapOpen
			}
			storeOpt[i] = cell
			diag = prevCol
		}

		// Lazy-F correction: the per-stripe cd update above only propagates
		// the vertical gap within one lane's contiguous row block; shift cd
		// across the lane boundary and re-max until no stripe changes.
		carry := cd
		for pass := 0; pass < 8; pass++ {
			// carry[k] becomes the vertical-gap contribution arriving at
			// lane k from lane k-1's last row (shift-by-one-lane).
			shifted := [8]int32{negInf, carry[0], carry[1], carry[2], carry[3], carry[4], carry[5], carry[6]}
			changed := false
			for i := 0; i < segLen; i++ {
				for k := 0; k < 8; k++ {
					cand := shifted[k]
					if cand <= negInf {
						continue
					}
					if cand > storeOpt[i][k] {
						storeOpt[i][k] = cand
						changed = true
					}
					if storeOpt[i][k] > maxScore {
						maxScore = storeOpt[i][k]
						dbEnd, queryEnd = j, i+k*segLen
					}
					shifted[k] = storeOpt[i][k] + gapOpen
				}
			}
			if !changed {
				break
			}
			carry = shifted
		}
	}

	if maxScore >= MaxScore16 {
		saturated = true
	}
	return Result{Score: maxScore, Saturated: saturated, DBEnd: dbEnd, QueryEnd: queryEnd}
}
