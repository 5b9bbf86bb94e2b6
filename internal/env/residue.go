package env

// residueCode maps each letter of "ARNDCQEGHILKMFPSTWYVBZ", upper or lower
// case, to its index in that string, a row/column of a scoring Matrix. Any
// other byte, 'X' and '*' included, maps to the trailing "unknown" code
// MatrixDim-1, which is also the code of 'Z', matching the original
// AGD-derived alphabet table (agd::nst_nt4_table sibling for protein
// residues): unrecognized input is treated as the wildcard column rather
// than rejected, since upstream chunk readers may pass through masked or
// ambiguous residues.
var residueCode [256]byte

const unknownResidue = MatrixDim - 1

func init() {
	const alphabet = "ARNDCQEGHILKMFPSTWYVBZ"
	for i := range residueCode {
		residueCode[i] = unknownResidue
	}
	for i := 0; i < len(alphabet) && i < MatrixDim; i++ {
		residueCode[alphabet[i]] = byte(i)
		residueCode[alphabet[i]+('a'-'A')] = byte(i)
	}
}

// Encode maps a raw residue byte string into matrix indices in [0, MatrixDim).
func Encode(seq []byte) []byte {
	out := make([]byte, len(seq))
	for i, c := range seq {
		out[i] = residueCode[c]
	}
	return out
}
