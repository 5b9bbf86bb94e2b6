package swkernel

import "github.com/alpae/clustermerge/internal/env"

// Endpoints is the located local-alignment window on both sequences plus
// its score, recovered by running the striped score-only kernel forward
// (to find the end) and then again on the reversed prefixes (to find the
// start) — the standard double-pass technique for striped kernels that
// don't carry full traceback pointers (spec.md §4.1, "double alignment").
type Endpoints struct {
	Score              int32
	Saturated          bool
	QueryMin, QueryMax int // [min, max) on the query
	DBMin, DBMax       int // [min, max) on the db sequence
}

// Locate finds the local-alignment window of query against db under the
// given scoring environment.
func Locate(query, db []byte, e *env.Environment) Endpoints {
	gapOpen := int32(e.GapOpen)
	gapExt := int32(e.GapExtend)

	fwdProfile := BuildProfile(query, e.Matrix)
	defer fwdProfile.Free()
	fwd := ScoreOnly(fwdProfile, db, gapOpen, gapExt)
	if fwd.Score == 0 || fwd.DBEnd < 0 {
		return Endpoints{Score: fwd.Score, Saturated: fwd.Saturated}
	}

	qSub := reverse(query[:fwd.QueryEnd+1])
	dSub := reverse(db[:fwd.DBEnd+1])
	revProfile := BuildProfile(qSub, e.Matrix)
	defer revProfile.Free()
	rev := ScoreOnly(revProfile, dSub, gapOpen, gapExt)

	queryMin := fwd.QueryEnd - rev.QueryEnd
	dbMin := fwd.DBEnd - rev.DBEnd
	if queryMin < 0 {
		queryMin = 0
	}
	if dbMin < 0 {
		dbMin = 0
	}

	return Endpoints{
		Score:     fwd.Score,
		Saturated: fwd.Saturated || rev.Saturated,
		QueryMin:  queryMin,
		QueryMax:  fwd.QueryEnd + 1,
		DBMin:     dbMin,
		DBMax:     fwd.DBEnd + 1,
	}
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}
