// Package responses keeps the local copy of one question's responses in step
// with a change feed and derives the dashboard views from it.
//
// A Store has exactly one owner. It does not lock; callers that share it
// across goroutines serialize access themselves.
package responses

import (
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"live-response-service/internal/domain"
)

// SortField selects the key used by List and ListSubmitted.
type SortField string

const (
	SortByNumber SortField = "number"
	SortByName   SortField = "name"
	SortByStatus SortField = "status"
	SortByTime   SortField = "time"
)

// Direction is the sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseSortField validates a client supplied sort key. Empty means time.
func ParseSortField(raw string) (SortField, error) {
	switch f := SortField(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return SortByTime, nil
	case SortByNumber, SortByName, SortByStatus, SortByTime:
		return f, nil
	}
	return "", domain.ErrInvalidSortField
}

// ParseDirection maps anything other than "desc" to ascending.
func ParseDirection(raw string) Direction {
	if strings.EqualFold(strings.TrimSpace(raw), string(Desc)) {
		return Desc
	}
	return Asc
}

// OptionTally is the submitted vote count for one poll option.
type OptionTally struct {
	Option      string              `json:"option"`
	Votes       int                 `json:"votes"`
	Respondents []domain.Respondent `json:"respondents"`
}

// TextEntry is one submitted free-text answer.
type TextEntry struct {
	Text          string
	StudentNumber string
	Nickname      string
}

type entry struct {
	resp domain.Response
	seq  uint64
}

// Store maps response id to response.
type Store struct {
	entries map[string]entry
	nextSeq uint64
	version uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Apply dispatches a change event. It returns false when the event was dropped.
func (s *Store) Apply(ev domain.ChangeEvent) bool {
	switch ev.Kind {
	case domain.ChangeInsert:
		return s.ApplyInsert(ev.Response)
	case domain.ChangeUpdate:
		return s.ApplyUpdate(ev.Response)
	case domain.ChangeDelete:
		return s.ApplyDelete(ev.Response.ID)
	}
	return false
}

// ApplyInsert upserts r. A redelivered id keeps its original position.
func (s *Store) ApplyInsert(r domain.Response) bool {
	return s.upsert(r)
}

// ApplyUpdate replaces r, inserting it when the id is not present.
func (s *Store) ApplyUpdate(r domain.Response) bool {
	return s.upsert(r)
}

// ApplyDelete removes id. Unknown ids are a no-op.
func (s *Store) ApplyDelete(id string) bool {
	if strings.TrimSpace(id) == "" {
		return false
	}
	if _, ok := s.entries[id]; ok {
		delete(s.entries, id)
		s.version++
	}
	return true
}

func (s *Store) upsert(r domain.Response) bool {
	if strings.TrimSpace(r.ID) == "" {
		return false
	}
	e, ok := s.entries[r.ID]
	if !ok {
		e.seq = s.nextSeq
		s.nextSeq++
	}
	e.resp = cloneResponse(r)
	s.entries[r.ID] = e
	s.version++
	return true
}

// Reset drops every entry. Used before a full resnapshot.
func (s *Store) Reset() {
	s.entries = make(map[string]entry)
	s.version++
}

// Version changes on every applied mutation.
func (s *Store) Version() uint64 {
	return s.version
}

// Get returns the response stored under id.
func (s *Store) Get(id string) (domain.Response, bool) {
	e, ok := s.entries[id]
	if !ok {
		return domain.Response{}, false
	}
	return cloneResponse(e.resp), true
}

// ParticipantCount counts every entry, in progress or not.
func (s *Store) ParticipantCount() int {
	return len(s.entries)
}

// SubmittedCount counts entries that are no longer in progress.
func (s *Store) SubmittedCount() int {
	n := 0
	for _, e := range s.entries {
		if e.resp.Submitted() {
			n++
		}
	}
	return n
}

// ListSubmitted returns submitted responses in the requested order.
// Equal keys keep insertion order in both directions.
func (s *Store) ListSubmitted(field SortField, dir Direction) []domain.Response {
	return s.list(field, dir, true)
}

// List is ListSubmitted over all entries, including those still in progress.
func (s *Store) List(field SortField, dir Direction) []domain.Response {
	return s.list(field, dir, false)
}

func (s *Store) list(field SortField, dir Direction, submittedOnly bool) []domain.Response {
	selected := s.inserted(submittedOnly)
	cmp := comparator(field)
	sort.SliceStable(selected, func(i, j int) bool {
		c := cmp(selected[i].resp, selected[j].resp)
		if dir == Desc {
			c = -c
		}
		return c < 0
	})
	out := make([]domain.Response, 0, len(selected))
	for _, e := range selected {
		out = append(out, cloneResponse(e.resp))
	}
	return out
}

// PollTally counts submitted votes per configured option, in option order.
// Answers that are not configured options are ignored.
func (s *Store) PollTally(options []string) []OptionTally {
	tallies := make([]OptionTally, len(options))
	index := make(map[string]int, len(options))
	for i, opt := range options {
		tallies[i] = OptionTally{Option: opt, Respondents: []domain.Respondent{}}
		if _, dup := index[opt]; !dup {
			index[opt] = i
		}
	}

	for _, e := range s.bySubmission() {
		counted := make(map[int]struct{}, len(e.resp.PollAnswer))
		for _, answer := range e.resp.PollAnswer {
			i, ok := index[answer]
			if !ok {
				continue
			}
			if _, seen := counted[i]; seen {
				continue
			}
			counted[i] = struct{}{}
			tallies[i].Votes++
			tallies[i].Respondents = append(tallies[i].Respondents, e.resp.Respondent())
		}
	}
	return tallies
}

// TextEntries returns submitted, non-blank text answers in submission order.
func (s *Store) TextEntries() []TextEntry {
	var out []TextEntry
	for _, e := range s.bySubmission() {
		if strings.TrimSpace(e.resp.TextAnswer) == "" {
			continue
		}
		out = append(out, TextEntry{
			Text:          e.resp.TextAnswer,
			StudentNumber: e.resp.StudentNumber,
			Nickname:      e.resp.Nickname,
		})
	}
	return out
}

// inserted returns entries in insertion order.
func (s *Store) inserted(submittedOnly bool) []entry {
	out := make([]entry, 0, len(s.entries))
	for _, e := range s.entries {
		if submittedOnly && !e.resp.Submitted() {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// bySubmission returns submitted entries ordered by SubmittedAt, then insertion.
func (s *Store) bySubmission() []entry {
	out := s.inserted(true)
	sort.SliceStable(out, func(i, j int) bool {
		return submittedTime(out[i].resp).Before(submittedTime(out[j].resp))
	})
	return out
}

func comparator(field SortField) func(a, b domain.Response) int {
	switch field {
	case SortByNumber:
		return func(a, b domain.Response) int {
			return compareInt(leadingInt(a.StudentNumber), leadingInt(b.StudentNumber))
		}
	case SortByName:
		c := collate.New(language.Korean)
		return func(a, b domain.Response) int {
			return c.CompareString(a.Nickname, b.Nickname)
		}
	case SortByStatus:
		return func(a, b domain.Response) int {
			return compareInt(statusRank(a), statusRank(b))
		}
	default:
		return func(a, b domain.Response) int {
			return activityTime(a).Compare(activityTime(b))
		}
	}
}

// leadingInt parses the optional sign and leading digits of s, 0 when there are none.
func leadingInt(s string) int {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// in-progress sorts after submitted
func statusRank(r domain.Response) int {
	if r.IsInProgress {
		return 1
	}
	return 0
}

func activityTime(r domain.Response) time.Time {
	if !r.CreatedAt.IsZero() {
		return r.CreatedAt
	}
	return submittedTime(r)
}

func submittedTime(r domain.Response) time.Time {
	if r.SubmittedAt != nil {
		return *r.SubmittedAt
	}
	return time.Time{}
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cloneResponse(r domain.Response) domain.Response {
	if r.PollAnswer != nil {
		r.PollAnswer = append([]string(nil), r.PollAnswer...)
	}
	if r.SubmittedAt != nil {
		t := *r.SubmittedAt
		r.SubmittedAt = &t
	}
	return r
}
