package internal

import (
	"iter"
	"maps"
)

// Defines collects name/value pairs from multiple iterators.
// Later sequences override earlier ones.
func Defines(seqs ...iter.Seq2[string, string]) (defs map[string]string) {
	defs = make(map[string]string)
	for _, seq := range seqs {
		maps.Insert(defs, seq)
	}
	return
}
