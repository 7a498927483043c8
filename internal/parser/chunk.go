package parser

import (
	"strings"
	"unicode"

	"learning-assistant/internal/models"
)

// chunkContent splits content into pieces of at most maxChars runes, each
// overlapping the previous one by up to overlapChars. A piece ends at the last
// space, newline or period in its final tenth when one exists.
func chunkContent(content string, maxChars, overlapChars int) []string {
	if maxChars <= 0 {
		return nil
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}

	runes := []rune(strings.TrimSpace(content))
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= maxChars {
		return []string{string(runes)}
	}

	var chunks []string
	start := 0
	for start < n {
		end := min(start+maxChars, n)

		if end < n {
			lookBack := min(maxChars/10, end-start)
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if unicode.IsSpace(runes[i]) || runes[i] == '.' {
					end = i + 1
					break
				}
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= n {
			break
		}

		next := end - overlapChars
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// buildChunks chunks text and gives every piece its own copy of meta.
func buildChunks(text string, opts Options, meta models.Metadata) []models.Chunk {
	pieces := chunkContent(text, opts.ChunkSize, opts.ChunkOverlap)
	chunks := make([]models.Chunk, 0, len(pieces))
	for _, p := range pieces {
		chunks = append(chunks, models.Chunk{Text: p, Metadata: meta.Copy()})
	}
	return chunks
}
