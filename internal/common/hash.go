package common

import "hash/fnv"

// ContentHash computes the 32-bit FNV-1a hash of extracted Markdown content.
// Collisions are tolerated; the change detector uses it as the last of four
// tiers, and the enrichment service refreshes it after a successful rewrite.
func ContentHash(content string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(content))
	return h.Sum32()
}
