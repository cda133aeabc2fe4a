package retrieval

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/retail-copilot/internal/model"
)

// DefaultTopK is the number of chunks returned when the caller does not ask
// for a specific count.
const DefaultTopK = 3

// chunk is one indexed paragraph with its term frequencies.
type chunk struct {
	id     string
	source string
	text   string
	terms  map[string]int
	length float64 // L2 norm of the tf-idf vector, filled after indexing
}

// Retriever scores document chunks against a query using tf-idf cosine
// similarity. The corpus is loaded once and never mutated by searches.
type Retriever struct {
	chunks  []chunk
	docFreq map[string]int
}

// NewFromDir loads every markdown document under dir, splits it into
// blank-line-separated paragraph chunks, and builds the tf-idf index. An
// optional corpus.yaml manifest in dir restricts which files are indexed.
func NewFromDir(dir string) (*Retriever, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "retrieval: read corpus dir %s", dir)
	}

	manifest, err := loadManifest(filepath.Join(dir, manifestName))
	if err != nil {
		return nil, err
	}

	r := &Retriever{docFreq: make(map[string]int)}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		if manifest != nil && !manifest.includes(entry.Name()) {
			zap.L().Debug("retrieval: skipping file not in manifest",
				zap.String("file", entry.Name()),
			)
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, eris.Wrapf(err, "retrieval: read %s", entry.Name())
		}

		source := strings.TrimSuffix(entry.Name(), ".md")
		r.addDocument(source, string(data))
	}

	if len(r.chunks) == 0 {
		return nil, eris.Errorf("retrieval: no markdown documents found in %s", dir)
	}

	r.finalize()

	zap.L().Info("retrieval: corpus indexed",
		zap.String("dir", dir),
		zap.Int("chunks", len(r.chunks)),
		zap.Int("terms", len(r.docFreq)),
	)
	return r, nil
}

// addDocument splits content on blank lines and indexes each paragraph.
func (r *Retriever) addDocument(source, content string) {
	paragraphs := strings.Split(content, "\n\n")
	idx := 0
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		terms := termFrequencies(tokenize(p))
		c := chunk{
			id:     fmt.Sprintf("%s::chunk%d", source, idx),
			source: source,
			text:   p,
			terms:  terms,
		}
		r.chunks = append(r.chunks, c)
		for term := range terms {
			r.docFreq[term]++
		}
		idx++
	}
}

// finalize precomputes each chunk's tf-idf vector norm.
func (r *Retriever) finalize() {
	n := float64(len(r.chunks))
	for i := range r.chunks {
		var sumSq float64
		for term, tf := range r.chunks[i].terms {
			w := float64(tf) * idf(n, r.docFreq[term])
			sumSq += w * w
		}
		r.chunks[i].length = math.Sqrt(sumSq)
	}
}

// Search returns the topK chunks ranked by descending cosine similarity.
// Ties keep corpus order (stable). Scores are in [0,1]; chunks that share no
// terms with the query score 0 but still fill out the topK, matching corpus
// order, so downstream always sees up to topK candidates.
func (r *Retriever) Search(query string, topK int) []model.RetrievedChunk {
	if topK <= 0 {
		topK = DefaultTopK
	}

	queryTerms := termFrequencies(tokenize(query))
	n := float64(len(r.chunks))

	var queryNorm float64
	queryWeights := make(map[string]float64, len(queryTerms))
	for term, tf := range queryTerms {
		df, ok := r.docFreq[term]
		if !ok {
			continue
		}
		w := float64(tf) * idf(n, df)
		queryWeights[term] = w
		queryNorm += w * w
	}
	queryNorm = math.Sqrt(queryNorm)

	type scored struct {
		pos   int
		score float64
	}
	results := make([]scored, len(r.chunks))
	for i, c := range r.chunks {
		results[i] = scored{pos: i, score: r.cosine(c, queryWeights, queryNorm, n)}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	if topK > len(results) {
		topK = len(results)
	}

	out := make([]model.RetrievedChunk, 0, topK)
	for _, res := range results[:topK] {
		c := r.chunks[res.pos]
		out = append(out, model.RetrievedChunk{
			ID:     c.id,
			Source: c.source,
			Text:   c.text,
			Score:  res.score,
		})
	}
	return out
}

func (r *Retriever) cosine(c chunk, queryWeights map[string]float64, queryNorm float64, n float64) float64 {
	if queryNorm == 0 || c.length == 0 {
		return 0
	}
	var dot float64
	for term, qw := range queryWeights {
		tf, ok := c.terms[term]
		if !ok {
			continue
		}
		dot += qw * float64(tf) * idf(n, r.docFreq[term])
	}
	score := dot / (queryNorm * c.length)
	// Guard against float drift past 1.0.
	if score > 1 {
		score = 1
	}
	return score
}

// ChunkByID returns the text of a specific chunk, or "" if unknown.
func (r *Retriever) ChunkByID(id string) string {
	for _, c := range r.chunks {
		if c.id == id {
			return c.text
		}
	}
	return ""
}

// Len returns the number of indexed chunks.
func (r *Retriever) Len() int {
	return len(r.chunks)
}

// idf uses smoothed inverse document frequency so terms present in every
// chunk still carry a small positive weight.
func idf(n float64, df int) float64 {
	return math.Log((n+1)/(float64(df)+1)) + 1
}

func termFrequencies(terms []string) map[string]int {
	freq := make(map[string]int, len(terms))
	for _, t := range terms {
		freq[t]++
	}
	return freq
}

// tokenize splits text into lowercase terms, dropping stopwords and tokens
// shorter than two characters.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})

	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "have": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "this": true, "to": true, "was": true,
	"were": true, "which": true, "with": true,
}
