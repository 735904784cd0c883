// Package chunker splits assistant response text into ordered utterance
// fragments sized for progressive video generation.
//
// The splitter is tuned for fast time-to-first-frame with smooth
// continuation: sentence and clause boundaries ('.', '!', '?', ';') become
// fragment boundaries, oversize sentences are subdivided at word boundaries,
// and short leading sentences are buffered together into fragment 0 up to a
// hard limit so the first clip is neither tiny nor slow to render. Each
// fragment downstream costs one TTS call plus one lip-sync render (roughly
// 8–10 s of video per fragment), so the uniform cap keeps chunk cadence
// predictable.
package chunker

import "strings"

const (
	// DefaultMaxChars is the hard cap for fragments at index >= 1.
	DefaultMaxChars = 120

	// DefaultFirstChunkHardLimit is the hard cap for fragment 0 after the
	// leading fragments have been buffered together.
	DefaultFirstChunkHardLimit = 125

	// maskByte temporarily replaces the periods of protected abbreviations
	// so they are not treated as sentence boundaries. NUL cannot occur in
	// the whitespace-normalised input.
	maskByte = '\x00'
)

// DefaultAbbreviations lists the abbreviations whose periods never end a
// sentence. The set covers the honorifics and initialisms that show up in
// conversational prose.
var DefaultAbbreviations = []string{
	"Mr.", "Mrs.", "Ms.", "Dr.", "Jr.", "Sr.",
	"D.C.", "U.S.", "U.K.",
	"e.g.", "i.e.", "etc.", "vs.",
}

// Config holds the tuning knobs for a [Splitter]. Zero-value fields are
// replaced with the package defaults by [New].
type Config struct {
	// MaxChars caps the length of every fragment at index >= 1.
	MaxChars int

	// FirstChunkHardLimit caps the length of fragment 0 after buffering.
	// Must be >= MaxChars.
	FirstChunkHardLimit int

	// Abbreviations is the protected abbreviation set.
	Abbreviations []string
}

// Splitter splits text into utterance fragments. It is immutable after
// construction and therefore safe for concurrent use.
type Splitter struct {
	maxChars       int
	firstHardLimit int
	abbrevs        []string
	masked         []string
}

// New creates a [Splitter], filling zero-value config fields with defaults.
func New(cfg Config) *Splitter {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.FirstChunkHardLimit <= 0 {
		cfg.FirstChunkHardLimit = DefaultFirstChunkHardLimit
	}
	if cfg.FirstChunkHardLimit < cfg.MaxChars {
		cfg.FirstChunkHardLimit = cfg.MaxChars
	}
	if cfg.Abbreviations == nil {
		cfg.Abbreviations = DefaultAbbreviations
	}

	s := &Splitter{
		maxChars:       cfg.MaxChars,
		firstHardLimit: cfg.FirstChunkHardLimit,
		abbrevs:        cfg.Abbreviations,
		masked:         make([]string, len(cfg.Abbreviations)),
	}
	for i, a := range cfg.Abbreviations {
		s.masked[i] = strings.ReplaceAll(a, ".", string(maskByte))
	}
	return s
}

// Split breaks text into ordered utterance fragments.
//
// Guarantees:
//   - every fragment at index >= 1 is at most MaxChars long; fragment 0 is
//     at most FirstChunkHardLimit long,
//   - protected abbreviations are never split,
//   - joining all fragments with single spaces reproduces the
//     whitespace-normalised input,
//   - fragments appear in input order; none are reordered or dropped.
//
// Empty or all-whitespace input yields a nil slice.
func (s *Splitter) Split(text string) []string {
	norm := normalize(text)
	if norm == "" {
		return nil
	}

	masked := s.mask(norm)
	sentences := splitBoundaries(masked)

	var frags []string
	for _, sentence := range sentences {
		if len(sentence) <= s.maxChars {
			frags = append(frags, sentence)
			continue
		}
		frags = append(frags, packWords(sentence, s.maxChars)...)
	}

	frags = s.bufferFirstChunk(frags)

	for i, f := range frags {
		frags[i] = s.unmask(f)
	}
	return frags
}

// normalize collapses all whitespace runs to single spaces and trims the
// ends, preserving casing and punctuation.
func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// mask replaces the periods of protected abbreviations with maskByte so the
// boundary scan skips them.
func (s *Splitter) mask(text string) string {
	for i, a := range s.abbrevs {
		text = strings.ReplaceAll(text, a, s.masked[i])
	}
	return text
}

// unmask restores the periods hidden by mask.
func (s *Splitter) unmask(text string) string {
	return strings.ReplaceAll(text, string(maskByte), ".")
}

// splitBoundaries splits text at every '.', '!', '?', or ';' that is
// followed by a space or the end of the string. The punctuation mark stays
// attached to the preceding fragment.
func splitBoundaries(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?', ';':
			if i+1 == len(text) || text[i+1] == ' ' {
				out = append(out, text[start:i+1])
				// Skip the boundary space.
				start = i + 2
				i++
			}
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// packWords subdivides an oversize sentence at word boundaries into pieces
// of at most limit characters. A single word longer than limit is emitted
// whole — words are never split internally.
func packWords(sentence string, limit int) []string {
	words := strings.Split(sentence, " ")
	var out []string
	cur := words[0]
	for _, w := range words[1:] {
		if len(cur)+1+len(w) > limit {
			out = append(out, cur)
			cur = w
			continue
		}
		cur += " " + w
	}
	return append(out, cur)
}

// bufferFirstChunk greedily merges leading fragments into fragment 0 while
// the combined length stays within the first-chunk hard limit. Merging never
// crosses a semicolon boundary: clause breaks marked by ';' always start a
// new fragment, which keeps verse and enumeration cadence intact.
func (s *Splitter) bufferFirstChunk(frags []string) []string {
	if len(frags) < 2 {
		return frags
	}
	first := frags[0]
	next := 1
	for next < len(frags) {
		if strings.HasSuffix(first, ";") {
			break
		}
		if len(first)+1+len(frags[next]) > s.firstHardLimit {
			break
		}
		first += " " + frags[next]
		next++
	}
	return append([]string{first}, frags[next:]...)
}
