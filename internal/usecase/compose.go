package usecase

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"docqa/internal/domain"
	"docqa/internal/logging"
	"docqa/internal/port"
)

//go:embed templates/*.txt
var promptTemplates embed.FS

// NoGroundingText is the answer given when retrieval found nothing to cite.
const NoGroundingText = "No relevant passages were found in the uploaded documents, so this question cannot be answered from them."

const systemPrompt = "You are a careful assistant that answers questions about the user's documents. " +
	"Use only the supplied passages, cite them by marker, and never invent sources."

const excerptRunes = 240

// ComposerOptions controls prompt assembly and generation.
type ComposerOptions struct {
	PromptTokenBudget int
	MaxOutputTokens   int
	Temperature       float64
	AllowUngrounded   bool
}

// Composer builds prompts from retrieved chunks, calls the generator and
// resolves the citations in its response.
type Composer struct {
	generator port.Generator
	counter   port.TokenCounter
	opts      ComposerOptions
	tmpl      *template.Template
	logger    *slog.Logger
}

// NewComposer creates a composer. A budget below one token is a configuration error.
func NewComposer(generator port.Generator, counter port.TokenCounter, opts ComposerOptions, logger *slog.Logger) (*Composer, error) {
	if opts.PromptTokenBudget <= 0 {
		return nil, fmt.Errorf("%w: prompt token budget must be positive, got %d", domain.ErrConfiguration, opts.PromptTokenBudget)
	}

	content, err := promptTemplates.ReadFile("templates/answer_prompt.txt")
	if err != nil {
		return nil, fmt.Errorf("template not found: %w", err)
	}
	tmpl, err := template.New("answer").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	return &Composer{
		generator: generator,
		counter:   counter,
		opts:      opts,
		tmpl:      tmpl,
		logger:    logging.OrDiscard(logger),
	}, nil
}

// Prompt is an assembled generation request and the chunks it carries.
type Prompt struct {
	Request  port.GenerateRequest
	Included []domain.ScoredChunk
	Dropped  int
	Degraded bool
	Tokens   int
}

type promptData struct {
	Question string
	Blocks   []port.ContextBlock
}

// BuildPrompt fits the question and as many chunks as the token budget allows,
// in the order given. Chunks are dropped from the end. When not even the first
// chunk fits it is cut at a natural boundary and the prompt is marked degraded.
func (c *Composer) BuildPrompt(question string, chunks []domain.ScoredChunk) (Prompt, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Prompt{}, domain.InvalidInput("question is empty")
	}

	bare, tokens, err := c.render(question, nil)
	if err != nil {
		return Prompt{}, err
	}
	if tokens > c.opts.PromptTokenBudget {
		return Prompt{}, domain.InvalidInput("question needs %d tokens, prompt budget is %d", tokens, c.opts.PromptTokenBudget)
	}
	if len(chunks) == 0 {
		return c.prompt(question, bare, tokens, nil, nil, 0, false), nil
	}

	blocks := make([]port.ContextBlock, len(chunks))
	for i, sc := range chunks {
		blocks[i] = port.ContextBlock{
			Marker: i + 1,
			Source: sourceLabel(sc.Chunk),
			Text:   sc.Chunk.Text,
		}
	}

	for n := len(blocks); n > 0; n-- {
		text, tokens, err := c.render(question, blocks[:n])
		if err != nil {
			return Prompt{}, err
		}
		if tokens <= c.opts.PromptTokenBudget {
			if dropped := len(blocks) - n; dropped > 0 {
				c.logger.Debug("dropped chunks to fit prompt budget",
					"dropped", dropped, "kept", n, "budget", c.opts.PromptTokenBudget)
			}
			return c.prompt(question, text, tokens, blocks[:n], chunks[:n], len(blocks)-n, false), nil
		}
	}

	top, text, tokens, err := c.truncateToFit(question, blocks[0])
	if err != nil {
		return Prompt{}, err
	}
	c.logger.Warn("top chunk truncated to fit prompt budget",
		"chunk_id", chunks[0].Chunk.ID,
		"kept_runes", len([]rune(top.Text)),
		"chunk_runes", len([]rune(blocks[0].Text)),
		"budget", c.opts.PromptTokenBudget)
	return c.prompt(question, text, tokens, []port.ContextBlock{top}, chunks[:1], len(blocks)-1, true), nil
}

func (c *Composer) prompt(question, text string, tokens int, blocks []port.ContextBlock, included []domain.ScoredChunk, dropped int, degraded bool) Prompt {
	return Prompt{
		Request: port.GenerateRequest{
			System:      systemPrompt,
			Prompt:      text,
			Question:    question,
			Context:     blocks,
			MaxTokens:   c.opts.MaxOutputTokens,
			Temperature: c.opts.Temperature,
		},
		Included: included,
		Dropped:  dropped,
		Degraded: degraded,
		Tokens:   tokens,
	}
}

// truncateToFit finds the longest prefix of block that fits the budget, then
// pulls the cut back to a paragraph, line, sentence or word boundary.
func (c *Composer) truncateToFit(question string, block port.ContextBlock) (port.ContextBlock, string, int, error) {
	runes := []rune(block.Text)
	fits := func(n int) (string, int, bool, error) {
		b := block
		b.Text = string(runes[:n])
		text, tokens, err := c.render(question, []port.ContextBlock{b})
		return text, tokens, tokens <= c.opts.PromptTokenBudget, err
	}

	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		_, _, ok, err := fits(mid)
		if err != nil {
			return port.ContextBlock{}, "", 0, err
		}
		if ok {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if lo == 0 {
		return port.ContextBlock{}, "", 0, domain.InvalidInput("prompt budget of %d tokens leaves no room for context", c.opts.PromptTokenBudget)
	}

	cut := naturalCut(runes[:lo])
	if cut == 0 {
		cut = lo
	}
	text, tokens, ok, err := fits(cut)
	if err != nil {
		return port.ContextBlock{}, "", 0, err
	}
	if !ok {
		cut = lo
		if text, tokens, _, err = fits(cut); err != nil {
			return port.ContextBlock{}, "", 0, err
		}
	}

	block.Text = string(runes[:cut])
	return block, text, tokens, nil
}

var cutSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", " "}

// naturalCut returns the length of the longest prefix of runes ending on a
// boundary, provided that keeps at least half the text. Otherwise it cuts hard.
func naturalCut(runes []rune) int {
	s := string(runes)
	floor := len(s) / 2
	for _, sep := range cutSeparators {
		if i := strings.LastIndex(s, sep); i >= floor {
			end := i + len(sep)
			if strings.TrimSpace(sep) == "" {
				end = i
			}
			return len([]rune(s[:end]))
		}
	}
	return len(runes)
}

func (c *Composer) render(question string, blocks []port.ContextBlock) (string, int, error) {
	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, promptData{Question: question, Blocks: blocks}); err != nil {
		return "", 0, fmt.Errorf("failed to render template: %w", err)
	}
	text := buf.String()
	return text, c.counter.CountTokens(systemPrompt) + c.counter.CountTokens(text), nil
}

func sourceLabel(ch domain.Chunk) string {
	label := fmt.Sprintf("%s (chars %d-%d", ch.DocumentName, ch.Start, ch.End)
	if ch.Page > 0 {
		label += ", page " + strconv.Itoa(ch.Page)
	}
	return label + ")"
}

// Compose answers question from chunks, which must be in descending relevance
// order. With no chunks it returns the no-grounding answer without calling the
// generator unless ungrounded answers are allowed.
func (c *Composer) Compose(ctx context.Context, question string, chunks []domain.ScoredChunk) (domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.Answer{}, domain.InvalidInput("question is empty")
	}
	if len(chunks) == 0 && !c.opts.AllowUngrounded {
		return NoGroundingAnswer(question), nil
	}

	prompt, err := c.BuildPrompt(question, chunks)
	if err != nil {
		return domain.Answer{}, err
	}

	text, err := c.generator.Generate(ctx, prompt.Request)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	answer := domain.Answer{
		Question: question,
		Text:     strings.TrimSpace(text),
		Grounded: len(prompt.Included) > 0,
		Degraded: prompt.Degraded,
	}
	answer.Citations, answer.ExplicitCitations = resolveCitations(answer.Text, prompt.Included)
	return answer, nil
}

// NoGroundingAnswer is the well-defined answer for a question nothing in the
// corpus supports.
func NoGroundingAnswer(question string) domain.Answer {
	return domain.Answer{
		Question:  question,
		Text:      NoGroundingText,
		Citations: []domain.Citation{},
	}
}

var markerPattern = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

// parseMarkers returns the citation markers in text in first-use order,
// ignoring duplicates and markers outside 1..max.
func parseMarkers(text string, max int) []int {
	seen := make(map[int]bool)
	var markers []int
	for _, m := range markerPattern.FindAllStringSubmatch(text, -1) {
		for _, field := range strings.Split(m[1], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil || n < 1 || n > max || seen[n] {
				continue
			}
			seen[n] = true
			markers = append(markers, n)
		}
	}
	return markers
}

// resolveCitations maps markers used in text to the included chunks. Without
// any markers every included chunk is reported as a candidate source.
func resolveCitations(text string, included []domain.ScoredChunk) ([]domain.Citation, bool) {
	citations := []domain.Citation{}
	markers := parseMarkers(text, len(included))
	explicit := len(markers) > 0
	if !explicit {
		for i := range included {
			markers = append(markers, i+1)
		}
	}
	for _, m := range markers {
		sc := included[m-1]
		citations = append(citations, domain.Citation{
			Marker:       m,
			ChunkID:      sc.Chunk.ID,
			DocumentID:   sc.Chunk.DocumentID,
			DocumentName: sc.Chunk.DocumentName,
			Start:        sc.Chunk.Start,
			End:          sc.Chunk.End,
			Page:         sc.Chunk.Page,
			Score:        sc.Score,
			Excerpt:      excerpt(sc.Chunk.Text),
		})
	}
	return citations, explicit
}

func excerpt(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= excerptRunes {
		return string(runes)
	}
	return strings.TrimSpace(string(runes[:excerptRunes])) + "..."
}
