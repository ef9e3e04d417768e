// Package vector holds helpers shared by VectorIndex adapters.
package vector

import (
	"fmt"
	"math"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
)

// ValidateBatch checks that every slice of req has the same length and
// every vector has the collection dimension.
func ValidateBatch(req driven.AddRequest, dimension int) error {
	n := len(req.IDs)
	if len(req.Texts) != n || len(req.Vectors) != n || len(req.Metadatas) != n {
		return fmt.Errorf("%w: batch lengths differ: %d ids, %d texts, %d vectors, %d metadatas",
			domain.ErrIndexInconsistency, n, len(req.Texts), len(req.Vectors), len(req.Metadatas))
	}
	for i, v := range req.Vectors {
		if len(v) != dimension {
			return fmt.Errorf("%w: vector %d (%s) has %d dimensions, collection expects %d (delta %d)",
				domain.ErrDimensionMismatch, i, req.IDs[i], len(v), dimension, len(v)-dimension)
		}
	}
	return nil
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either is a zero vector.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
