package retrieval

// defaultDuplicateThreshold is the cosine similarity at which two packs are
// treated as the same content indexed twice.
const defaultDuplicateThreshold = 0.95

// collapseNearDuplicates drops candidates whose stored vectors are nearly
// identical to a higher-ranked candidate. Input must already be sorted by
// FinalScore descending; the survivor of each duplicate pair is the earlier
// one. Candidates without a stored vector are always kept. Returns the kept
// slice and the number dropped.
func collapseNearDuplicates(candidates []Candidate, vectorsByID map[string][]float64, threshold float64) ([]Candidate, int) {
	if threshold <= 0 {
		threshold = defaultDuplicateThreshold
	}
	if len(candidates) < 2 || len(vectorsByID) == 0 {
		return candidates, 0
	}

	norms := make(map[string]float64, len(vectorsByID))
	for id, vec := range vectorsByID {
		norms[id] = vectorNorm(vec)
	}

	kept := make([]Candidate, 0, len(candidates))
	dropped := 0
	for _, c := range candidates {
		vec, ok := vectorsByID[c.Pack.ID]
		if !ok || norms[c.Pack.ID] == 0 {
			kept = append(kept, c)
			continue
		}
		duplicate := false
		for _, k := range kept {
			kvec, ok := vectorsByID[k.Pack.ID]
			if !ok || len(kvec) != len(vec) || norms[k.Pack.ID] == 0 {
				continue
			}
			if cosineSimilarity(vec, norms[c.Pack.ID], kvec) >= threshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			dropped++
			continue
		}
		kept = append(kept, c)
	}
	return kept, dropped
}
