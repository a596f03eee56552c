package facematch

import (
	"fmt"
	"os"
	"sync"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/face-attendance/internal/consensus"
	"github.com/kozaktomas/face-attendance/internal/database"
)

const (
	// galleryMaxNeighbors is the HNSW M parameter.
	galleryMaxNeighbors = 16
	// gallerySearchK is how many candidates are re-ranked with exact distance.
	gallerySearchK = 5
)

// Gallery is an in-memory nearest-neighbour index over registered face
// embeddings. It implements consensus.Labeler.
type Gallery struct {
	mu        sync.RWMutex
	graph     *hnsw.Graph[int64]
	names     map[int64]string
	dim       int
	tolerance float64
}

// NewGallery builds a gallery from stored embeddings. Embeddings whose
// dimension differs from the first one are skipped.
func NewGallery(faces []database.FaceEmbedding, tolerance float64) *Gallery {
	g := &Gallery{tolerance: tolerance}
	g.Rebuild(faces)
	return g
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = galleryMaxNeighbors
	g.Ml = 1.0 / float64(galleryMaxNeighbors)
	g.Distance = hnsw.CosineDistance
	return g
}

// indexable filters faces down to the embeddings the gallery can hold. The
// first non-empty embedding fixes the dimension.
func indexable(faces []database.FaceEmbedding) (names map[int64]string, vectors map[int64][]float32, dim int) {
	names = make(map[int64]string, len(faces))
	vectors = make(map[int64][]float32, len(faces))
	for i := range faces {
		f := &faces[i]
		if len(f.Embedding) == 0 {
			continue
		}
		if dim == 0 {
			dim = len(f.Embedding)
		}
		if len(f.Embedding) != dim {
			continue
		}
		names[f.ID] = f.Name
		vectors[f.ID] = f.Embedding
	}
	return names, vectors, dim
}

// Rebuild replaces the indexed embeddings.
func (g *Gallery) Rebuild(faces []database.FaceEmbedding) {
	graph := newGraph()
	names, vectors, dim := indexable(faces)
	for i := range faces {
		if v, ok := vectors[faces[i].ID]; ok {
			graph.Add(hnsw.MakeNode(faces[i].ID, v))
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.graph = graph
	g.names = names
	g.dim = dim
}

// Import loads a graph written by Export and adopts it when it holds exactly
// the given faces. It returns false without error when the file does not
// exist or the graph is stale; the gallery is left unchanged in both cases.
func (g *Gallery) Import(path string, faces []database.FaceEmbedding) (bool, error) {
	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("open gallery index file: %w", err)
	}
	defer f.Close()

	graph := newGraph()
	if err := graph.Import(f); err != nil {
		return false, fmt.Errorf("import gallery graph: %w", err)
	}

	names, vectors, dim := indexable(faces)
	if graph.Len() != len(names) {
		return false, nil
	}
	for id, want := range vectors {
		got, ok := graph.Lookup(id)
		if !ok || !sameVector(got, want) {
			return false, nil
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.graph = graph
	g.names = names
	g.dim = dim
	return true, nil
}

func sameVector(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Add indexes one more embedding.
func (g *Gallery) Add(face database.FaceEmbedding) error {
	if len(face.Embedding) == 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dim == 0 {
		g.dim = len(face.Embedding)
	}
	if len(face.Embedding) != g.dim {
		return fmt.Errorf("embedding dimension %d does not match gallery dimension %d", len(face.Embedding), g.dim)
	}
	g.graph.Add(hnsw.MakeNode(face.ID, face.Embedding))
	g.names[face.ID] = face.Name
	return nil
}

// Count returns the number of indexed embeddings.
func (g *Gallery) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.names)
}

// Nearest returns the name of the closest registered embedding and its
// cosine distance. ok is false when the gallery is empty or the query has
// the wrong dimension.
func (g *Gallery) Nearest(embedding []float32) (name string, distance float64, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.names) == 0 || len(embedding) != g.dim {
		return "", 0, false
	}

	best := 2.0
	for _, n := range g.graph.Search(embedding, gallerySearchK) {
		owner, known := g.names[n.Key]
		if !known {
			continue
		}
		if d := CosineDistance(embedding, n.Value); !ok || d < best {
			name, best, ok = owner, d, true
		}
	}
	return name, best, ok
}

// Label implements consensus.Labeler. Matches at or beyond the gallery
// tolerance are reported as consensus.Unrecognized.
func (g *Gallery) Label(embedding []float32) (string, float64) {
	name, dist, ok := g.Nearest(embedding)
	if !ok {
		return consensus.Unrecognized, 2.0
	}
	if dist >= g.tolerance {
		return consensus.Unrecognized, dist
	}
	return name, dist
}

// Export writes the HNSW graph to path. The next start loads it with Import
// instead of rebuilding. An empty gallery removes the file.
func (g *Gallery) Export(path string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.names) == 0 {
		_ = os.Remove(path)
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("create gallery index file: %w", err)
	}
	defer f.Close()

	if err := g.graph.Export(f); err != nil {
		return fmt.Errorf("export gallery graph: %w", err)
	}
	return nil
}
