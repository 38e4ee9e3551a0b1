package wordcloud

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-response-service/internal/domain"
)

func TestExtractCountsOncePerRespondent(t *testing.T) {
	entries := []Entry{
		{Text: "I like cats and cats", StudentNumber: "1", Nickname: "A"},
		{Text: "cats are great", StudentNumber: "2", Nickname: "B"},
	}

	words := Extract(entries)
	require.NotEmpty(t, words)
	assert.Equal(t, "cats", words[0].Text)
	assert.Equal(t, 2, words[0].Count)
	assert.Equal(t, []domain.Respondent{{Number: "1", Nickname: "A"}, {Number: "2", Nickname: "B"}}, words[0].Respondents)

	for _, w := range words {
		assert.NotEqual(t, "i", w.Text, "single character tokens are dropped")
	}
	assert.Equal(t, words, Extract(entries))
}

func TestExtractTiesKeepFirstSeenOrder(t *testing.T) {
	words := Extract([]Entry{
		{Text: "zebra apple", StudentNumber: "1", Nickname: "A"},
		{Text: "mango apple", StudentNumber: "2", Nickname: "B"},
	})

	texts := make([]string, 0, len(words))
	for _, w := range words {
		texts = append(texts, w.Text)
	}
	assert.Equal(t, []string{"apple", "zebra", "mango"}, texts)
}

func TestExtractStripsPunctuationAndLowercases(t *testing.T) {
	words := Extract([]Entry{
		{Text: "Hello, WORLD! hello... 안녕하세요 ㅋㅋ", StudentNumber: "1", Nickname: "A"},
	})

	got := map[string]int{}
	for _, w := range words {
		got[w.Text] = w.Count
	}
	assert.Equal(t, map[string]int{"hello": 1, "world": 1, "안녕하세요": 1, "ㅋㅋ": 1}, got)
}

func TestExtractExcludesStopWords(t *testing.T) {
	words := Extract([]Entry{
		{Text: "에서 으로 학교 에서", StudentNumber: "1", Nickname: "A"},
		{Text: "으로 에서", StudentNumber: "2", Nickname: "B"},
	})

	require.Len(t, words, 1)
	assert.Equal(t, "학교", words[0].Text)
	assert.True(t, IsStopWord("에서"))
	assert.False(t, IsStopWord("학교"))
}

func TestExtractTruncatesToTopFifty(t *testing.T) {
	var entries []Entry
	// token i appears in 60-i responses
	for i := 0; i < 60; i++ {
		for n := 0; n < 60-i; n++ {
			entries = append(entries, Entry{Text: fmt.Sprintf("word%02d", i), StudentNumber: fmt.Sprint(n), Nickname: "x"})
		}
	}

	words := Extract(entries)
	require.Len(t, words, MaxWords)
	for i, w := range words {
		assert.Equal(t, fmt.Sprintf("word%02d", i), w.Text)
		assert.Equal(t, 60-i, w.Count)
	}
}

func TestExtractEmptyInput(t *testing.T) {
	assert.Empty(t, Extract(nil))
	assert.Empty(t, Extract([]Entry{{Text: "   "}, {Text: "!! ? a"}}))
	assert.NotNil(t, Extract(nil))
}

func TestSizeFor(t *testing.T) {
	assert.Equal(t, MidSize, SizeFor(5, 5, 5))
	assert.Equal(t, MidSize, SizeFor(1, 3, 3))
	assert.Equal(t, MinSize, SizeFor(1, 1, 9))
	assert.Equal(t, MaxSize, SizeFor(9, 1, 9))
	assert.Equal(t, 48, SizeFor(5, 1, 9))
	assert.Equal(t, 40, SizeFor(2, 1, 4))
	// 24.5 rounds half up
	assert.Equal(t, 25, SizeFor(2, 1, 97))
}

func TestBuildHidesRespondentsWhenAnonymous(t *testing.T) {
	entries := []Entry{
		{Text: "sunny day", StudentNumber: domain.AnonymousRespondent, Nickname: domain.AnonymousRespondent},
		{Text: "sunny", StudentNumber: domain.AnonymousRespondent, Nickname: domain.AnonymousRespondent},
	}

	cloud := Build(entries, true)
	require.Len(t, cloud.Words, 2)
	assert.Equal(t, 2, cloud.Responses)
	assert.Equal(t, MaxSize, cloud.Words[0].Size)
	assert.Equal(t, MinSize, cloud.Words[1].Size)
	for _, w := range cloud.Words {
		assert.Nil(t, w.Respondents)
	}

	named := Build(entries, false)
	assert.Len(t, named.Words[0].Respondents, 2)
}

func TestBuildSingleWordUsesMidSize(t *testing.T) {
	cloud := Build([]Entry{{Text: strings.Repeat("rain ", 3), StudentNumber: "1", Nickname: "A"}}, false)
	require.Len(t, cloud.Words, 1)
	assert.Equal(t, MidSize, cloud.Words[0].Size)
}

func TestCloneDoesNotShareSlices(t *testing.T) {
	cloud := Build([]Entry{
		{Text: "snow", StudentNumber: "1", Nickname: "A"},
		{Text: "snow rain", StudentNumber: "2", Nickname: "B"},
	}, false)
	clone := cloud.Clone()
	require.Equal(t, cloud, clone)

	clone.Words[0].Text = "hail"
	clone.Words[0].Respondents[0].Nickname = "Z"
	assert.Equal(t, "snow", cloud.Words[0].Text)
	assert.Equal(t, "A", cloud.Words[0].Respondents[0].Nickname)

	anonymous := Build([]Entry{{Text: "snow"}}, true).Clone()
	assert.Nil(t, anonymous.Words[0].Respondents)
}
