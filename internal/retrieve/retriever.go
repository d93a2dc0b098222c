// Package retrieve implements a TF-IDF passage retriever over a directory of
// markdown reference documents. Documents are paragraph-chunked at load time;
// ranking is deterministic for a fixed corpus.
package retrieve

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/analytics-copilot/internal/model"
)

var folder = cases.Fold()

// stopwords kept deliberately small; the corpus is short reference prose.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "the": true, "to": true,
	"was": true, "were": true, "with": true,
}

type chunk struct {
	passage model.Passage
	vec     map[string]float64
	norm    float64
}

// Index holds the chunked corpus and its term statistics.
type Index struct {
	chunks []chunk
	df     map[string]int
}

// NewIndex loads every *.md file under dir and builds the TF-IDF index.
// Chunk ids are "<file stem>::chunkN" in paragraph order.
func NewIndex(dir string) (*Index, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, eris.Wrap(err, "retrieve: glob docs")
	}
	sort.Strings(paths)

	idx := &Index{df: make(map[string]int)}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, eris.Wrapf(err, "retrieve: read %s", p)
		}
		stem := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		idx.addDocument(stem, string(data))
	}

	if len(idx.chunks) == 0 {
		return nil, eris.Errorf("retrieve: no documents found in %s", dir)
	}

	idx.finalize()
	zap.L().Debug("retriever index built",
		zap.Int("documents", len(paths)),
		zap.Int("chunks", len(idx.chunks)),
	)
	return idx, nil
}

func (x *Index) addDocument(stem, content string) {
	paras := strings.Split(content, "\n\n")
	n := 0
	for _, para := range paras {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		tf := termFreq(tokenize(para))
		x.chunks = append(x.chunks, chunk{
			passage: model.Passage{
				SourceID: stem + "::chunk" + strconv.Itoa(n),
				Source:   stem,
				Content:  para,
			},
			vec: tf,
		})
		for term := range tf {
			x.df[term]++
		}
		n++
	}
}

// finalize converts raw term frequencies into tf-idf weights and precomputes
// vector norms.
func (x *Index) finalize() {
	total := float64(len(x.chunks))
	for i := range x.chunks {
		c := &x.chunks[i]
		var norm float64
		for term, tf := range c.vec {
			w := tf * idf(total, x.df[term])
			c.vec[term] = w
			norm += w * w
		}
		c.norm = math.Sqrt(norm)
	}
}

// Retrieve returns the top-k chunks ranked by cosine similarity to the query.
// Ties break on source id so results are stable.
func (x *Index) Retrieve(query string, k int) []model.Passage {
	if k <= 0 {
		return nil
	}

	qtf := termFreq(tokenize(query))
	total := float64(len(x.chunks))
	var qnorm float64
	for term, tf := range qtf {
		w := tf * idf(total, x.df[term])
		qtf[term] = w
		qnorm += w * w
	}
	qnorm = math.Sqrt(qnorm)
	if qnorm == 0 {
		return nil
	}

	type scored struct {
		i     int
		score float64
	}
	var hits []scored
	for i, c := range x.chunks {
		if c.norm == 0 {
			continue
		}
		var dot float64
		for term, qw := range qtf {
			if cw, ok := c.vec[term]; ok {
				dot += qw * cw
			}
		}
		if dot == 0 {
			continue
		}
		hits = append(hits, scored{i: i, score: dot / (qnorm * c.norm)})
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return x.chunks[hits[a].i].passage.SourceID < x.chunks[hits[b].i].passage.SourceID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]model.Passage, 0, len(hits))
	for _, h := range hits {
		p := x.chunks[h.i].passage
		p.Score = h.score
		out = append(out, p)
	}
	return out
}

func tokenize(s string) []string {
	s = folder.String(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(('a' <= r && r <= 'z') || ('0' <= r && r <= '9'))
	})
	var out []string
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func termFreq(tokens []string) map[string]float64 {
	tf := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

func idf(total float64, df int) float64 {
	if df == 0 {
		return 0
	}
	return math.Log((1+total)/(1+float64(df))) + 1
}
