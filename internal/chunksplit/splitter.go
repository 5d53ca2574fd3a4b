package chunksplit

import (
	"strings"

	"github.com/kvander/bookdex/internal/textdoc"
)

// EstimateTokens uses a conservative ~3 characters per token. Provider
// tokenizers vary; overestimating keeps every request under the hard
// limit, so exact parity is deliberately not attempted.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(text)/3 + 1
}

// safetyMarginTokens is headroom between an emitted chunk's estimate and
// the provider's hard limit, absorbing estimation error.
const safetyMarginTokens = 256

type Config struct {
	WordThreshold  int
	TargetTokens   int
	OverlapTokens  int
	HardTokenLimit int
}

type Piece struct {
	Heading       string
	Content       string
	TokenEstimate int
}

type Splitter struct {
	cfg Config
}

func New(cfg Config) *Splitter {
	if cfg.WordThreshold <= 0 {
		cfg.WordThreshold = 4000
	}
	if cfg.TargetTokens <= 0 {
		cfg.TargetTokens = 1024
	}
	if cfg.OverlapTokens <= 0 {
		cfg.OverlapTokens = 128
	}
	if cfg.OverlapTokens >= cfg.TargetTokens {
		cfg.OverlapTokens = cfg.TargetTokens / 4
	}
	if cfg.HardTokenLimit <= 0 {
		cfg.HardTokenLimit = 8191
	}
	return &Splitter{cfg: cfg}
}

// Needed reports whether a chapter is long enough to require chunking.
func (s *Splitter) Needed(text string) bool {
	return len(strings.Fields(text)) > s.cfg.WordThreshold
}

// Split produces overlapping windows targeting the configured token
// budget. Split points prefer paragraph boundaries, then sentence
// boundaries, over mid-word cuts; every piece keeps the nearest
// preceding heading for context.
func (s *Splitter) Split(text string) []Piece {
	var pieces []Piece
	var window []string
	var windowTokens int
	var currentHeading string

	flush := func() {
		if len(window) == 0 {
			return
		}
		content := strings.Join(window, "\n\n")
		pieces = append(pieces, s.emit(currentHeading, content))

		// Carry trailing paragraphs forward as overlap.
		overlapTokens := 0
		var overlap []string
		for i := len(window) - 1; i >= 0; i-- {
			t := EstimateTokens(window[i])
			if overlapTokens+t > s.cfg.OverlapTokens {
				break
			}
			overlapTokens += t
			overlap = append([]string{window[i]}, overlap...)
		}
		window = overlap
		windowTokens = overlapTokens
	}

	for _, para := range splitParagraphs(text) {
		if isHeadingParagraph(para) {
			flush()
			window = nil
			windowTokens = 0
			currentHeading = para
			continue
		}
		for _, span := range s.fitSpans(para) {
			t := EstimateTokens(span)
			if windowTokens+t > s.cfg.TargetTokens && windowTokens > 0 {
				flush()
			}
			window = append(window, span)
			windowTokens += t
		}
	}
	flush()
	return pieces
}

func (s *Splitter) emit(heading, content string) Piece {
	limit := s.cfg.HardTokenLimit - safetyMarginTokens
	est := EstimateTokens(content)
	if est >= limit {
		// Target budgets sit far under the hard limit; this only fires
		// on degenerate input like one enormous unbreakable span.
		content = truncateBytes(content, (limit-2)*3)
		est = EstimateTokens(content)
	}
	return Piece{Heading: heading, Content: content, TokenEstimate: est}
}

// TruncateToTokens cuts text so its token estimate stays at or below
// budget, on a rune boundary.
func TruncateToTokens(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if EstimateTokens(text) <= budget {
		return text
	}
	return truncateBytes(text, (budget-1)*3)
}

// fitSpans returns the paragraph whole when it fits the target budget,
// otherwise sentence groups, otherwise hard character cuts.
func (s *Splitter) fitSpans(para string) []string {
	if EstimateTokens(para) <= s.cfg.TargetTokens {
		return []string{para}
	}
	var spans []string
	var current strings.Builder
	for _, sentence := range splitSentences(para) {
		if EstimateTokens(sentence) > s.cfg.TargetTokens {
			if current.Len() > 0 {
				spans = append(spans, current.String())
				current.Reset()
			}
			spans = append(spans, hardCut(sentence, s.cfg.TargetTokens*3)...)
			continue
		}
		if current.Len() > 0 && EstimateTokens(current.String())+EstimateTokens(sentence) > s.cfg.TargetTokens {
			spans = append(spans, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		spans = append(spans, current.String())
	}
	return spans
}

func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	paragraphs := make([]string, 0, len(raw))
	for _, p := range raw {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		paragraphs = append(paragraphs, trimmed)
	}
	return paragraphs
}

func isHeadingParagraph(para string) bool {
	if strings.Contains(para, "\n") {
		return false
	}
	return textdoc.LooksLikeHeading(para) && len(strings.Fields(para)) <= 10
}

func splitSentences(text string) []string {
	var sentences []string
	begin := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && runes[i+1] != ' ' && runes[i+1] != '\n' {
			continue
		}
		sentence := strings.TrimSpace(string(runes[begin : i+1]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		begin = i + 1
	}
	if rest := strings.TrimSpace(string(runes[begin:])); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// hardCut slices on byte budgets (token estimation is byte-based) while
// never cutting inside a rune.
func hardCut(text string, maxBytes int) []string {
	if maxBytes < 4 {
		maxBytes = 4
	}
	var cuts []string
	for len(text) > 0 {
		if len(text) <= maxBytes {
			cuts = append(cuts, text)
			break
		}
		cut := truncateBytes(text, maxBytes)
		cuts = append(cuts, cut)
		text = text[len(cut):]
	}
	return cuts
}

func truncateBytes(text string, maxBytes int) string {
	if len(text) <= maxBytes {
		return text
	}
	cut := maxBytes
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
