package internal

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

const (
	textRankDamping    = 0.85
	textRankIterations = 50
	textRankEpsilon    = 1e-5
	pseudoSentenceLen  = 25
	minSentenceWords   = 4
)

var sentenceEnd = regexp.MustCompile(`([.!?]+)\s+`)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a about above after again against all am an and any are as at be because been
		before being below between both but by can could did do does doing down during each few for from further
		had has have having he her here hers herself him himself his how i if in into is it its itself just let
		me more most my myself no nor not now of off on once only or other our ours ourselves out over own really
		same she should so some such than that the their theirs them themselves then there these they this those
		through to too under until up very was we were what when where which while who whom why will with would
		you your yours yourself yourselves yeah okay oh um uh like gonna got get going know think right`) {
		stopwords[w] = struct{}{}
	}
}

// RankedSentence is a sentence with its TextRank score and position.
type RankedSentence struct {
	Text  string
	Index int
	Score float64
}

// splitSentences breaks text on terminal punctuation. Auto-generated
// captions have none, so long runs are cut into fixed-size word windows.
func splitSentences(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	marked := sentenceEnd.ReplaceAllString(text, "$1\n")

	var out []string
	for s := range strings.SplitSeq(marked, "\n") {
		words := strings.Fields(s)
		for len(words) > 2*pseudoSentenceLen {
			out = append(out, strings.Join(words[:pseudoSentenceLen], " "))
			words = words[pseudoSentenceLen:]
		}
		if len(words) > 0 {
			out = append(out, strings.Join(words, " "))
		}
	}
	return out
}

func contentWords(sentence string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(sentence), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	}) {
		w = strings.Trim(w, "'")
		if len(w) < 2 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		words[w] = struct{}{}
	}
	return words
}

// TextRank scores sentences by centrality in the word-overlap graph and
// returns them best first. Ties keep document order.
func TextRank(sentences []string) []RankedSentence {
	type node struct {
		text  string
		index int
		words map[string]struct{}
	}
	var nodes []node
	for i, s := range sentences {
		if len(strings.Fields(s)) < minSentenceWords {
			continue
		}
		nodes = append(nodes, node{text: s, index: i, words: contentWords(s)})
	}
	n := len(nodes)
	if n == 0 {
		return nil
	}

	weights := make([][]float64, n)
	outSum := make([]float64, n)
	for i := range nodes {
		weights[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			w := similarity(nodes[i].words, nodes[j].words)
			weights[i][j], weights[j][i] = w, w
			outSum[i] += w
			outSum[j] += w
		}
	}

	scores := make([]float64, n)
	for i := range scores {
		scores[i] = 1.0 / float64(n)
	}
	next := make([]float64, n)
	for iter := 0; iter < textRankIterations; iter++ {
		delta := 0.0
		for i := 0; i < n; i++ {
			sum := 0.0
			for j := 0; j < n; j++ {
				if weights[j][i] > 0 && outSum[j] > 0 {
					sum += weights[j][i] / outSum[j] * scores[j]
				}
			}
			next[i] = (1-textRankDamping)/float64(n) + textRankDamping*sum
			delta += math.Abs(next[i] - scores[i])
		}
		scores, next = next, scores
		if delta < textRankEpsilon {
			break
		}
	}

	ranked := make([]RankedSentence, n)
	for i, nd := range nodes {
		ranked[i] = RankedSentence{Text: nd.text, Index: nd.index, Score: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// similarity is the normalized word overlap used by the original TextRank paper.
func similarity(a, b map[string]struct{}) float64 {
	if len(a) < 2 || len(b) < 2 {
		return 0
	}
	overlap := 0
	for w := range a {
		if _, ok := b[w]; ok {
			overlap++
		}
	}
	if overlap == 0 {
		return 0
	}
	return float64(overlap) / (math.Log(float64(len(a))) + math.Log(float64(len(b))))
}

// topInDocumentOrder takes the n best sentences and restores reading order.
func topInDocumentOrder(ranked []RankedSentence, n int) []string {
	top := append([]RankedSentence(nil), ranked[:min(n, len(ranked))]...)
	sort.Slice(top, func(i, j int) bool { return top[i].Index < top[j].Index })
	out := make([]string, len(top))
	for i, r := range top {
		out[i] = r.Text
	}
	return out
}
