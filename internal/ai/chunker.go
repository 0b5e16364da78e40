package ai

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"
)

const (
	maxChunkTokens    = 400
	overlapTokenLimit = 80
)

// Segment is one chunk of a segmented source document, ordered by Ordinal.
type Segment struct {
	Content    string
	TokenCount int
	Ordinal    int
}

// Chunker splits markdown (or plain text) into retrieval-sized segments.
// Heading context is prepended to each segment and adjacent text segments
// share a small sliding overlap so answers spanning a boundary stay findable.
type Chunker struct{}

func NewChunker() *Chunker {
	return &Chunker{}
}

func (c *Chunker) Chunk(ctx context.Context, content string) []Segment {
	logger := logutil.GetLogger(ctx)
	md := goldmark.New()
	reader := text.NewReader([]byte(content))
	doc := md.Parser().Parse(reader)

	var segments []Segment
	var current []string
	var currentTokens int
	var currentHeading string
	isCode := false
	ordinal := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		body := strings.Join(current, "\n\n")
		if currentHeading != "" {
			body = "Heading: " + currentHeading + "\n" + body
		}
		tokenCount := EstimateTokens(body)
		logger.Debug("flushing segment",
			zap.Int("ordinal", ordinal),
			zap.Int("tokens", tokenCount),
		)
		segments = append(segments, Segment{
			Content:    body,
			TokenCount: tokenCount,
			Ordinal:    ordinal,
		})

		if !isCode && len(current) > 1 {
			overlapTokens := 0
			var overlapParts []string
			for i := len(current) - 1; i >= 0; i-- {
				t := EstimateTokens(current[i])
				if overlapTokens+t > overlapTokenLimit {
					break
				}
				overlapTokens += t
				overlapParts = append([]string{current[i]}, overlapParts...)
			}
			current = overlapParts
			currentTokens = overlapTokens
		} else {
			current = nil
			currentTokens = 0
		}
		isCode = false
		ordinal++
	}

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			if n.Level == 1 || n.Level == 2 {
				flush()
				currentHeading = string(n.Text(reader.Source()))
			} else {
				txt := string(n.Text(reader.Source()))
				current = append(current, txt)
				currentTokens += EstimateTokens(txt)
			}
		case *ast.FencedCodeBlock:
			lang := string(n.Language(reader.Source()))
			var code strings.Builder
			for i := 0; i < n.Lines().Len(); i++ {
				line := n.Lines().At(i)
				code.Write(line.Value(reader.Source()))
			}
			fenced := "```" + lang + "\n" + code.String() + "\n```"
			tokens := EstimateTokens(fenced)
			if currentTokens > 0 && currentTokens+tokens <= maxChunkTokens {
				current = append(current, fenced)
				currentTokens += tokens
			} else {
				flush()
				current = append(current, fenced)
				currentTokens = tokens
				isCode = true
				flush()
			}
		default:
			txt := extractText(node, reader.Source())
			if txt == "" {
				continue
			}
			tokens := EstimateTokens(txt)
			if currentTokens+tokens > maxChunkTokens {
				flush()
			}
			current = append(current, txt)
			currentTokens += tokens
		}
	}
	flush()
	logger.Debug("chunking completed", zap.Int("total_segments", len(segments)))
	return segments
}

// EstimateTokens counts words for ASCII text plus one token per non-ASCII rune.
func EstimateTokens(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}

func extractText(n ast.Node, source []byte) string {
	var sb strings.Builder
	ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Type() == ast.TypeBlock || node.Type() == ast.TypeInline {
			if node.Kind() == ast.KindText {
				sb.Write(node.(*ast.Text).Segment.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
