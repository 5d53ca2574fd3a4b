package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/kvander/bookdex/internal/detect"
	"github.com/kvander/bookdex/internal/textdoc"
)

// minHashableLength is the normalized-text length below which the hash
// input is extended with title and page range. Distinct near-empty
// chapters (cover, blank front matter, index stubs) would otherwise
// collide on an identical near-empty hash. Everywhere else in the system
// equal hashes are treated as content-identical, so this augmentation is
// the only place uniqueness is allowed to win over purity.
const minHashableLength = 64

type Extraction struct {
	Title          string
	NormalizedText string
	ContentHash    string
}

// Extract pulls the text for a boundary's page range, normalizes it and
// computes the content hash.
func Extract(doc *textdoc.Document, b detect.Boundary) (*Extraction, error) {
	if b.StartPage < 1 || b.EndPage > doc.PageCount() || b.StartPage > b.EndPage {
		return nil, fmt.Errorf("invalid page range %d-%d of %d pages", b.StartPage, b.EndPage, doc.PageCount())
	}
	normalized := NormalizeText(doc.PageRange(b.StartPage, b.EndPage))
	return &Extraction{
		Title:          b.Title,
		NormalizedText: normalized,
		ContentHash:    ContentHash(b.Title, b.StartPage, b.EndPage, normalized),
	}, nil
}

// NormalizeText collapses runs of whitespace to single spaces (keeping
// paragraph breaks as double newlines), strips control characters and
// normalizes unicode space variants.
func NormalizeText(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	paragraphs := strings.Split(raw, "\n\n")
	normalized := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		var sb strings.Builder
		lastSpace := false
		for _, r := range p {
			switch {
			case unicode.IsSpace(r):
				if !lastSpace {
					sb.WriteRune(' ')
					lastSpace = true
				}
			case unicode.IsControl(r):
				// drop
			default:
				sb.WriteRune(r)
				lastSpace = false
			}
		}
		cleaned := strings.TrimSpace(sb.String())
		if cleaned == "" {
			continue
		}
		normalized = append(normalized, cleaned)
	}
	return strings.Join(normalized, "\n\n")
}

// ContentHash is SHA-256 over the normalized text, or over
// title+pages+text when the text is near-empty.
func ContentHash(title string, startPage, endPage int, normalized string) string {
	input := normalized
	if len(normalized) < minHashableLength {
		input = fmt.Sprintf("%s|%d|%d|%s", title, startPage, endPage, normalized)
	}
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
