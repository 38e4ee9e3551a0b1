// Package wordcloud ranks the words of free-text answers for the word cloud view.
package wordcloud

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"live-response-service/internal/domain"
)

const (
	// MaxWords caps the ranked output.
	MaxWords = 50

	MinSize = 24
	MaxSize = 72
	// MidSize is used when every word has the same count.
	MidSize = 36

	minTokenLength = 2
)

// stopWords are Korean particles and conjunctions. They are matched before lowercasing.
var stopWords = map[string]struct{}{
	"은": {}, "는": {}, "이": {}, "가": {}, "을": {}, "를": {}, "의": {}, "에": {}, "와": {}, "과": {},
	"도": {}, "만": {}, "에서": {}, "으로": {}, "로": {}, "한": {}, "그": {}, "저": {}, "것": {}, "수": {},
	"등": {}, "및": {}, "더": {}, "때": {}, "곳": {}, "위": {}, "중": {}, "안": {}, "밖": {},
}

// IsStopWord reports whether token is excluded from counting.
func IsStopWord(token string) bool {
	_, ok := stopWords[token]
	return ok
}

// Entry is one submitted answer.
type Entry struct {
	Text          string
	StudentNumber string
	Nickname      string
}

// Word is a ranked token and the respondents that used it.
type Word struct {
	Text        string              `json:"text"`
	Count       int                 `json:"count"`
	Respondents []domain.Respondent `json:"respondents,omitempty"`
}

// SizedWord is a Word with its display size.
type SizedWord struct {
	Word
	Size int `json:"size"`
}

// Cloud is the rendered word cloud for one question.
type Cloud struct {
	Words     []SizedWord `json:"words"`
	Responses int         `json:"responses"`
}

// Clone returns a deep copy of the cloud.
func (c Cloud) Clone() Cloud {
	out := Cloud{Responses: c.Responses}
	if c.Words == nil {
		return out
	}
	out.Words = make([]SizedWord, len(c.Words))
	for i, w := range c.Words {
		out.Words[i] = w
		if w.Respondents != nil {
			out.Words[i].Respondents = append([]domain.Respondent(nil), w.Respondents...)
		}
	}
	return out
}

// Extract tokenizes entries and returns at most MaxWords words by descending count.
// Each entry contributes at most once per distinct word. Ties keep first-seen order.
func Extract(entries []Entry) []Word {
	var words []Word
	index := make(map[string]int)

	for _, e := range entries {
		if strings.TrimSpace(e.Text) == "" {
			continue
		}
		respondent := domain.Respondent{Number: e.StudentNumber, Nickname: e.Nickname}
		for _, token := range uniqueTokens(e.Text) {
			i, ok := index[token]
			if !ok {
				i = len(words)
				index[token] = i
				words = append(words, Word{Text: token})
			}
			words[i].Count++
			words[i].Respondents = append(words[i].Respondents, respondent)
		}
	}

	sort.SliceStable(words, func(i, j int) bool { return words[i].Count > words[j].Count })
	if len(words) > MaxWords {
		words = words[:MaxWords]
	}
	if words == nil {
		return []Word{}
	}
	return words
}

// uniqueTokens returns the normalized tokens of text, deduplicated in first-seen order.
func uniqueTokens(text string) []string {
	fields := strings.Fields(strings.Map(keepRune, text))
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minTokenLength || IsStopWord(f) {
			continue
		}
		token := strings.TrimSpace(strings.ToLower(f))
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}

// keepRune keeps ASCII word characters, whitespace and Hangul. Anything else becomes a space.
func keepRune(r rune) rune {
	switch {
	case r < utf8.RuneSelf && (r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'):
		return r
	case unicode.IsSpace(r):
		return r
	case r >= 'ㄱ' && r <= 'ㅎ', r >= 'ㅏ' && r <= 'ㅣ', r >= '가' && r <= '힣':
		return r
	}
	return ' '
}

// SizeFor maps count linearly onto [MinSize, MaxSize] using the set's count range.
func SizeFor(count, minCount, maxCount int) int {
	if minCount == maxCount {
		return MidSize
	}
	normalized := float64(count-minCount) / float64(maxCount-minCount)
	return int(math.Floor(MinSize + normalized*(MaxSize-MinSize) + 0.5))
}

// Build extracts and sizes the words of entries. Anonymous clouds carry no respondents.
func Build(entries []Entry, anonymous bool) Cloud {
	words := Extract(entries)
	cloud := Cloud{Words: make([]SizedWord, 0, len(words)), Responses: len(entries)}
	if len(words) == 0 {
		return cloud
	}

	// words are sorted by descending count
	maxCount, minCount := words[0].Count, words[len(words)-1].Count
	for _, w := range words {
		if anonymous {
			w.Respondents = nil
		}
		cloud.Words = append(cloud.Words, SizedWord{Word: w, Size: SizeFor(w.Count, minCount, maxCount)})
	}
	return cloud
}
