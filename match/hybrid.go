package match

// hybridAttributeWeight balances rule-based attribute scores against
// embedding similarity. 0.5 keeps the two signals on equal footing; both
// directions of the mutual score use the same constant.
const hybridAttributeWeight = 0.5

// hybridScore blends an attribute score with an embedding similarity.
// Cosine similarity can be negative, so it is clamped into [0,1] first.
func hybridScore(attribute, embedding float64) float64 {
	return hybridAttributeWeight*attribute + (1-hybridAttributeWeight)*clamp01(embedding)
}
