package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"docqa/internal/adapter/analyzer"
	"docqa/internal/port"
)

// NoAnswerText is returned by the extractive generator when no passage
// shares vocabulary with the question.
const NoAnswerText = "The provided documents do not contain enough information to answer this question."

// ExtractiveGenerator answers offline by quoting the context sentences that
// best overlap the question, each followed by its citation marker.
type ExtractiveGenerator struct {
	tokenizer    *analyzer.Tokenizer
	maxSentences int
}

var _ port.Generator = (*ExtractiveGenerator)(nil)

func NewExtractiveGenerator(maxSentences int) *ExtractiveGenerator {
	if maxSentences <= 0 {
		maxSentences = 2
	}
	return &ExtractiveGenerator{
		tokenizer:    analyzer.NewTokenizer(true),
		maxSentences: maxSentences,
	}
}

type candidate struct {
	marker   int
	sentence string
	score    float64
	order    int
}

func (g *ExtractiveGenerator) Generate(ctx context.Context, req port.GenerateRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	question := make(map[string]struct{})
	for _, t := range g.tokenizer.Tokenize(req.Question) {
		question[t] = struct{}{}
	}

	var cands []candidate
	for _, block := range req.Context {
		for _, s := range splitSentences(block.Text) {
			terms := g.tokenizer.Tokenize(s)
			if len(terms) == 0 {
				continue
			}
			hits := 0
			for _, t := range terms {
				if _, ok := question[t]; ok {
					hits++
				}
			}
			if hits == 0 {
				continue
			}
			cands = append(cands, candidate{
				marker:   block.Marker,
				sentence: s,
				score:    float64(hits) / float64(len(terms)+1),
				order:    len(cands),
			})
		}
	}
	if len(cands) == 0 {
		return NoAnswerText, nil
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })
	if len(cands) > g.maxSentences {
		cands = cands[:g.maxSentences]
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].order < cands[j].order })

	parts := make([]string, len(cands))
	for i, c := range cands {
		parts[i] = fmt.Sprintf("%s [%d]", strings.TrimRight(c.sentence, " "), c.marker)
	}
	return strings.Join(parts, " "), nil
}

func (g *ExtractiveGenerator) ModelName() string {
	return "extractive"
}

func splitSentences(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 == len(text) || text[i+1] == ' ' {
				if s := strings.TrimSpace(text[start : i+1]); s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
