package autopilot

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"github.com/cpunion/moltbot/pkg/types"
)

const (
	testFeedLimit   = 20
	testGrowthLimit = 5
)

// fakeSocial tells the engagement feed from the growth feed by limit.
type fakeSocial struct {
	mu sync.Mutex

	feed       []*types.Post
	feedErr    error
	growth     []*types.Post
	growthErr  error
	comments   []*types.Comment
	submitErr  error
	followErr  error
	upvoteErr  error
	claim      types.ClaimStatus
	claimErr   error
	feedGate   chan struct{}
	sorts      []types.Sort
	calls      []string
	submitted  []string
	followed   []string
	upvoted    []string
	posts      []types.Draft
	submolts   []string
	feedCalls  int
	growCalls  int
	claimCalls int
}

func (f *fakeSocial) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeSocial) GlobalFeed(ctx context.Context, sort types.Sort, limit int) ([]*types.Post, error) {
	f.mu.Lock()
	f.record("feed")
	if limit == testGrowthLimit || (sort == types.SortNew && limit == 10) {
		f.growCalls++
		defer f.mu.Unlock()
		return f.growth, f.growthErr
	}
	f.feedCalls++
	f.sorts = append(f.sorts, sort)
	gate := f.feedGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.feed, f.feedErr
}

func (f *fakeSocial) Comments(ctx context.Context, postID string) ([]*types.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("comments")
	return f.comments, nil
}

func (f *fakeSocial) CreateComment(ctx context.Context, postID, content, parentID string) (*types.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("comment")
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, postID+":"+content)
	return &types.Comment{ID: "c1", PostID: postID, Content: content}, nil
}

func (f *fakeSocial) CreatePost(ctx context.Context, submolt, title, content, link string) (*types.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("post")
	f.posts = append(f.posts, types.Draft{Title: title, Content: content})
	f.submolts = append(f.submolts, submolt)
	return &types.Post{ID: "new"}, nil
}

func (f *fakeSocial) UpvotePost(ctx context.Context, postID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("upvote")
	if f.upvoteErr != nil {
		return f.upvoteErr
	}
	f.upvoted = append(f.upvoted, postID)
	return nil
}

func (f *fakeSocial) Follow(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("follow")
	if f.followErr != nil {
		return f.followErr
	}
	f.followed = append(f.followed, name)
	return nil
}

func (f *fakeSocial) ClaimStatus(ctx context.Context) (types.ClaimStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("claim")
	f.claimCalls++
	return f.claim, f.claimErr
}

func (f *fakeSocial) snapshot() (calls []string, feedCalls, growCalls int, submitted []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...), f.feedCalls, f.growCalls, append([]string(nil), f.submitted...)
}

func (f *fakeSocial) set(fn func(f *fakeSocial)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type fakeWriter struct {
	mu      sync.Mutex
	reply   string
	draft   types.Draft
	postErr error
	seen    []string
}

func (w *fakeWriter) GenerateReply(ctx context.Context, title, body, thread string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen = append(w.seen, thread)
	return w.reply
}

func (w *fakeWriter) GeneratePost(ctx context.Context, topic, tone string) (types.Draft, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen = append(w.seen, topic)
	return w.draft, w.postErr
}

func samplePosts() []*types.Post {
	return []*types.Post{{
		ID:      "p1",
		Title:   "Are lobsters immortal? Asking for a friend who molts",
		Content: "they just keep growing",
		Author:  types.Author{Name: "crab"},
	}}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FeedLimit = testFeedLimit
	cfg.GrowthFeedLimit = testGrowthLimit
	return cfg
}

func newTestController(t *testing.T, social *fakeSocial, writer *fakeWriter) (*Controller, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	ctl := New(social, writer, testConfig(),
		WithClock(clock),
		WithRand(rand.New(rand.NewSource(7))),
		WithLogger(zerolog.Nop()),
	)
	ctl.SetClaimed(true)
	return ctl, clock
}

func messages(entries []types.LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func countSeverity(entries []types.LogEntry, sev types.Severity) int {
	n := 0
	for _, e := range entries {
		if e.Severity == sev {
			n++
		}
	}
	return n
}

func hasMessage(entries []types.LogEntry, prefix string) bool {
	for _, e := range entries {
		if strings.HasPrefix(e.Message, prefix) {
			return true
		}
	}
	return false
}

const (
	waitFor = 2 * time.Second
	tickFor = 5 * time.Millisecond
)

// verifyNoLeaks allows the file rotator's cleanup goroutine, which lives for
// the rest of the process once a rotating sink has been used.
func verifyNoLeaks(t *testing.T) {
	goleak.VerifyNone(t, goleak.IgnoreAnyFunction("gopkg.in/natefinch/lumberjack%2ev2.(*Logger).millRun"))
}
