package ingest

import (
	"fmt"
	"strings"

	"github.com/askdocs/askdocs-backend/engine/domain"
)

const (
	// DefaultChunkSize is the target number of characters per chunk.
	DefaultChunkSize = 1000
	// DefaultOverlap is the number of characters repeated between
	// consecutive chunks to preserve context across a cut.
	DefaultOverlap = 200
)

// separators, coarse to fine. A chunk boundary prefers a paragraph break,
// then a line break, then a space; only when none lands in the window does
// the text get cut mid-word.
var separators = []string{"\n\n", "\n", " "}

// Split breaks document text into chunks of at most chunkSize characters.
// The trailing overlap characters of each chunk are repeated at the start of
// the next one. Returns domain.ErrEmptyDocument when the text holds nothing
// embeddable. Pure function of its inputs.
func Split(text string, chunkSize, overlap int) ([]string, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("ingest: chunk size %d must be positive", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("ingest: overlap %d must be in [0, %d)", overlap, chunkSize)
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyDocument
	}

	var chunks []string
	start := 0
	for start < len(text) {
		rest := text[start:]
		if len(rest) <= chunkSize {
			chunks = append(chunks, rest)
			break
		}

		window := rest[:chunkSize]
		cut := cutPoint(window, overlap)
		chunks = append(chunks, window[:cut])

		// cut > overlap always holds, so the walk advances and the next
		// chunk opens with this chunk's trailing overlap characters.
		start += cut - overlap
	}
	return chunks, nil
}

// cutPoint picks where to end a full window: after the last occurrence of the
// coarsest separator found in its second half, or at the window end.
// Restricting boundaries to the second half avoids near-empty chunks when a
// document front-loads blank lines. A boundary at or before the overlap
// offset is unusable since the next chunk must repeat overlap trailing
// characters; when no separator qualifies the window is cut hard.
func cutPoint(window string, overlap int) int {
	for _, sep := range separators {
		idx := strings.LastIndex(window, sep)
		if idx >= len(window)/2 && idx+len(sep) > overlap {
			return idx + len(sep)
		}
	}
	return len(window)
}
