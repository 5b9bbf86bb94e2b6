// Package dataset loads the protein records that feed the clustering run.
// spec.md explicitly treats the on-disk genomic chunk format as an external
// collaborator ("a reader that yields (data, size) records is assumed"); this
// package supplies that reader as a plain multi-FASTA scanner, in the style
// of encoding/fasta's line-oriented parsing (bufio.Scanner over '>' headers),
// since FASTA is the natural record format for protein residue data and nothing
// more elaborate is named by the spec.
package dataset

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"sort"

	"github.com/grailbio/base/errors"

	"github.com/alpae/clustermerge/internal/cluster"
)

// Genome is one input file's worth of records: its name (derived from the
// file's base name) and the records it contains, in file order.
type Genome struct {
	Name    string
	Records [][]byte
}

// LoadGenome scans a FASTA file into a Genome. Each record's residues are a
// copy (not a view into a shared buffer), since os.File's backing memory is
// not retained after Close.
func LoadGenome(name, path string) (Genome, error) {
	f, err := os.Open(path)
	if err != nil {
		return Genome{}, errors.E(errors.NotExist, "dataset: open", path, ":", err)
	}
	defer f.Close()

	g := Genome{Name: name}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var cur bytes.Buffer
	flush := func() {
		if cur.Len() > 0 {
			rec := make([]byte, cur.Len())
			copy(rec, cur.Bytes())
			g.Records = append(g.Records, rec)
			cur.Reset()
		}
	}
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			flush()
			continue
		}
		cur.Write(bytes.TrimSpace(line))
	}
	flush()
	if err := scanner.Err(); err != nil {
		return Genome{}, errors.E(errors.Invalid, "dataset: scan", path, ":", err)
	}
	return g, nil
}

// BuildSequences assigns absolute IDs in input order across every genome and
// validates each record against MaxSequenceLength (spec.md §6: "Any dataset
// with a record larger than 60,000 bytes aborts").
func BuildSequences(genomes []Genome) ([]cluster.Sequence, error) {
	var out []cluster.Sequence
	var absoluteID uint32
	for _, g := range genomes {
		genomeSize := uint32(len(g.Records))
		for idx, rec := range g.Records {
			seq, err := cluster.NewSequence(rec, g.Name, genomeSize, uint32(idx), absoluteID)
			if err != nil {
				return nil, err
			}
			out = append(out, seq)
			absoluteID++
		}
	}
	return out, nil
}

// LoadAll reads every (name, path) pair and returns the combined, ID-assigned
// sequence list.
func LoadAll(files map[string]string) ([]cluster.Sequence, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	genomes := make([]Genome, 0, len(files))
	for _, name := range names {
		g, err := LoadGenome(name, files[name])
		if err != nil {
			return nil, err
		}
		genomes = append(genomes, g)
	}
	return BuildSequences(genomes)
}

// ReadInputList reads a newline-delimited "name\tpath" list (the -i/--input_list
// flag's file format, spec.md §6) into a files map.
func ReadInputList(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.E(errors.NotExist, "dataset: open input list", path, ":", err)
	}
	defer f.Close()

	files := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		parts := bytes.SplitN(line, []byte("\t"), 2)
		if len(parts) != 2 {
			return nil, errors.E(errors.Invalid, "dataset: malformed input list line:", string(line))
		}
		files[string(parts[0])] = string(parts[1])
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, errors.E(errors.Invalid, "dataset: read input list:", err)
	}
	return files, nil
}
