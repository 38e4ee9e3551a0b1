package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"live-response-service/internal/domain"
	"live-response-service/internal/metrics"
	"live-response-service/internal/responses"
	"live-response-service/internal/wordcloud"
)

// Order is the sort applied to a dashboard's response list.
type Order struct {
	Field     responses.SortField `json:"field"`
	Direction responses.Direction `json:"direction"`
}

// DefaultOrder lists responses by time, oldest first.
var DefaultOrder = Order{Field: responses.SortByTime, Direction: responses.Asc}

// Dashboard is the snapshot pushed to a teacher watching one question.
type Dashboard struct {
	QuestionID   string                  `json:"questionId"`
	Type         domain.QuestionType     `json:"type"`
	Status       domain.QuestionStatus   `json:"status"`
	Participants int                     `json:"participants"`
	Submitted    int                     `json:"submitted"`
	Order        Order                   `json:"order"`
	Responses    []domain.Response       `json:"responses"`
	Poll         []responses.OptionTally `json:"poll,omitempty"`
	UpdatedAt    time.Time               `json:"updatedAt"`
}

// View is one live dashboard session. It owns a responses.Store that mirrors
// the change feed of its question; the mutex serializes every store access.
type View struct {
	id       string
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   *slog.Logger
	reload   func(ctx context.Context) ([]domain.Response, error)
	onClose  func(*View)
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	mu           sync.RWMutex
	question     domain.Question
	store        *responses.Store
	order        Order
	subscribers  map[chan Dashboard]struct{}
	cloud        wordcloud.Cloud
	cloudVersion uint64
	cloudReady   bool
	cloudBuilds  int
	closed       bool
}

func newView(q domain.Question, order Order, now func() time.Time, m *metrics.Metrics, logger *slog.Logger) *View {
	return &View{
		id:          uuid.NewString(),
		now:         now,
		metrics:     m,
		logger:      logger,
		done:        make(chan struct{}),
		question:    q,
		store:       responses.NewStore(),
		order:       order,
		subscribers: make(map[chan Dashboard]struct{}),
	}
}

// ID identifies the view within the process.
func (v *View) ID() string { return v.id }

// QuestionID is the question the view follows.
func (v *View) QuestionID() string { return v.question.ID }

// Done is closed once the view stopped.
func (v *View) Done() <-chan struct{} { return v.done }

// Question returns the view's copy of its question.
func (v *View) Question() domain.Question {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.question
}

// Resync replaces the store content with a fresh snapshot from storage.
func (v *View) Resync(ctx context.Context) error {
	rows, err := v.reload(ctx)
	if err != nil {
		return err
	}
	v.load(rows)
	return nil
}

func (v *View) load(rows []domain.Response) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.store.Reset()
	for _, r := range rows {
		if !v.store.ApplyInsert(r) {
			v.metrics.EventDropped()
		}
	}
	v.broadcastLocked()
}

func (v *View) apply(ev domain.ChangeEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if ev.Response.QuestionID != "" && ev.Response.QuestionID != v.question.ID {
		v.metrics.EventDropped()
		return
	}
	if !v.store.Apply(ev) {
		v.metrics.EventDropped()
		v.logger.Warn("dropped malformed change event",
			"view_id", v.id,
			"question_id", v.question.ID,
			"kind", ev.Kind)
		return
	}
	v.metrics.EventApplied(string(ev.Kind))
	v.broadcastLocked()
}

// run pumps feed events into the store until the feed closes.
func (v *View) run(events <-chan domain.ChangeEvent) {
	for ev := range events {
		v.apply(ev)
	}
	v.stop()
}

// Close stops the view and closes every subscription.
func (v *View) Close() {
	v.stop()
}

func (v *View) stop() {
	v.stopOnce.Do(func() {
		if v.cancel != nil {
			v.cancel()
		}
		v.mu.Lock()
		v.closed = true
		for ch := range v.subscribers {
			delete(v.subscribers, ch)
			close(ch)
		}
		v.mu.Unlock()
		if v.onClose != nil {
			v.onClose(v)
		}
		close(v.done)
	})
}

// Subscribe returns a channel of dashboard snapshots. The first value is the
// current state. The caller must invoke the returned cancel function.
func (v *View) Subscribe() (<-chan Dashboard, func()) {
	ch := make(chan Dashboard, 8)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	v.subscribers[ch] = struct{}{}
	// ch is fresh and buffered, and stop cannot close it while mu is held
	ch <- v.snapshotLocked()
	v.mu.Unlock()

	cancel := func() {
		v.mu.Lock()
		if _, ok := v.subscribers[ch]; ok {
			delete(v.subscribers, ch)
			close(ch)
		}
		v.mu.Unlock()
	}
	return ch, cancel
}

// Dashboard returns the current snapshot.
func (v *View) Dashboard() Dashboard {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snapshotLocked()
}

// SetOrder changes the response order and rebroadcasts.
func (v *View) SetOrder(order Order) Dashboard {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.order = order
	return v.broadcastLocked()
}

// Roster lists every respondent, including those still answering.
func (v *View) Roster(order Order) []domain.Response {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.store.List(order.Field, order.Direction)
}

// WordCloud analyzes the submitted text answers. The analysis is reused until
// the store changes; callers get their own copy.
func (v *View) WordCloud() wordcloud.Cloud {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.cloudReady || v.cloudVersion != v.store.Version() {
		v.cloud = wordcloud.Build(toEntries(v.store.TextEntries()), v.question.IsAnonymous)
		v.cloudVersion = v.store.Version()
		v.cloudReady = true
		v.cloudBuilds++
	}
	return v.cloud.Clone()
}

func (v *View) setStatus(status domain.QuestionStatus, closedAt *time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.question.Status = status
	v.question.ClosedAt = closedAt
	v.broadcastLocked()
}

func (v *View) broadcastLocked() Dashboard {
	d := v.snapshotLocked()
	for ch := range v.subscribers {
		select {
		case ch <- d:
		default:
			// slow subscriber: replace its stale snapshot
			select {
			case <-ch:
			default:
			}
			ch <- d
		}
	}
	return d
}

func (v *View) snapshotLocked() Dashboard {
	d := Dashboard{
		QuestionID:   v.question.ID,
		Type:         v.question.Type,
		Status:       v.question.Status,
		Participants: v.store.ParticipantCount(),
		Submitted:    v.store.SubmittedCount(),
		Order:        v.order,
		Responses:    v.store.ListSubmitted(v.order.Field, v.order.Direction),
		UpdatedAt:    v.now(),
	}
	if v.question.Type == domain.QuestionTypePoll {
		d.Poll = v.store.PollTally(v.question.PollOptions)
	}
	return d
}

func toEntries(texts []responses.TextEntry) []wordcloud.Entry {
	return lo.Map(texts, func(t responses.TextEntry, _ int) wordcloud.Entry {
		return wordcloud.Entry{Text: t.Text, StudentNumber: t.StudentNumber, Nickname: t.Nickname}
	})
}
