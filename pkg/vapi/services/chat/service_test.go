package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/localvakil/vakil/pkg/db/dbtest"
	"github.com/localvakil/vakil/pkg/db/models"
	"github.com/localvakil/vakil/pkg/vcrypt"
	"github.com/localvakil/vakil/pkg/verr"
	"github.com/localvakil/vakil/pkg/vlog"
	"github.com/uptrace/bun"
)

var testKey = vcrypt.StaticKey("0123456789abcdef0123456789abcdef")

type fakeGenerator struct {
	reply   string
	err     error
	calls   int
	lastKey string
	onCall  func()
}

func (g *fakeGenerator) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	g.calls++
	g.lastKey = apiKey
	if g.onCall != nil {
		g.onCall()
	}
	return g.reply, g.err
}

type fixture struct {
	db  *bun.DB
	gen *fakeGenerator
	svc *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bdb := dbtest.New(t)
	gen := &fakeGenerator{reply: "Contracts with minors are void ab initio."}
	svc := NewService(bdb, vcrypt.NewService(testKey), gen, time.Second, vlog.NewDiscard())
	return &fixture{db: bdb, gen: gen, svc: svc}
}

func (f *fixture) user(t *testing.T, apiKey string) uuid.UUID {
	t.Helper()
	now := time.Now().UTC()
	u := &models.User{
		ID:         uuid.New(),
		ExternalID: "sub-" + uuid.NewString(),
		Email:      uuid.NewString() + "@example.com",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if apiKey != "" {
		env, err := vcrypt.NewService(testKey).Encrypt(apiKey)
		if err != nil {
			t.Fatal(err)
		}
		u.EncryptedAPIKey = &env
	}
	if _, err := f.db.NewInsert().Model(u).Exec(context.Background()); err != nil {
		t.Fatal(err)
	}
	return u.ID
}

func (f *fixture) counts(t *testing.T) (conversations, messages int) {
	t.Helper()
	ctx := context.Background()
	c, err := f.db.NewSelect().Model((*models.Conversation)(nil)).Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	m, err := f.db.NewSelect().Model((*models.Message)(nil)).Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return c, m
}

func TestDeriveTitle(t *testing.T) {
	long := "Can a minor enter into a contract under Indian law?"
	if got := DeriveTitle(long); got != "Can a minor enter into a contract under Indian law..." {
		t.Errorf("DeriveTitle(long) = %q", got)
	}

	exact := strings.Repeat("a", TitleLength)
	if got := DeriveTitle(exact); got != exact {
		t.Errorf("50-char text changed: %q", got)
	}

	short := "  What is bail?  "
	if got := DeriveTitle(short); got != "What is bail?" {
		t.Errorf("DeriveTitle(short) = %q", got)
	}

	// Counted in characters, not bytes.
	hindi := strings.Repeat("क", TitleLength+1)
	if got := DeriveTitle(hindi); got != strings.Repeat("क", TitleLength)+"..." {
		t.Errorf("multibyte title = %q", got)
	}
}

func TestSubmitCreatesConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "AIza-user-key")
	topic := int64(7)

	res, err := f.svc.Submit(ctx, SubmitInput{
		UserID:  uid,
		TopicID: &topic,
		Text:    "Can a minor enter into a contract under Indian law?",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Reply != f.gen.reply {
		t.Errorf("reply = %q", res.Reply)
	}
	if res.NewTitle != "Can a minor enter into a contract under Indian law..." {
		t.Errorf("title = %q", res.NewTitle)
	}
	if f.gen.lastKey != "AIza-user-key" {
		t.Errorf("generator got key %q", f.gen.lastKey)
	}

	convs, msgs := f.counts(t)
	if convs != 1 || msgs != 2 {
		t.Fatalf("counts = %d conversations, %d messages; want 1, 2", convs, msgs)
	}

	got, err := f.svc.Messages(ctx, uid, res.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Role != models.RoleUser || got[1].Role != models.RoleAssistant {
		t.Errorf("roles = %s, %s", got[0].Role, got[1].Role)
	}
	if got[1].Content != f.gen.reply {
		t.Errorf("assistant content = %q", got[1].Content)
	}

	list, err := f.svc.ListConversations(ctx, uid, &topic)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].TopicID == nil || *list[0].TopicID != topic {
		t.Errorf("list = %+v", list)
	}
}

func TestSubmitContinuesConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "k")

	first, err := f.svc.Submit(ctx, SubmitInput{UserID: uid, Text: "first"})
	if err != nil {
		t.Fatal(err)
	}

	id := first.ConversationID
	second, err := f.svc.Submit(ctx, SubmitInput{UserID: uid, ConversationID: &id, Text: "second"})
	if err != nil {
		t.Fatal(err)
	}
	if second.ConversationID != id || second.NewTitle != "" {
		t.Errorf("second = %+v", second)
	}

	msgs, err := f.svc.Messages(ctx, uid, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 4 || msgs[0].Content != "first" || msgs[2].Content != "second" {
		t.Errorf("messages out of order: %+v", msgs)
	}
}

func TestSubmitUpstreamFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "k")
	f.gen.err = verr.Errorf(verr.CodeUpstreamRejected, "HTTP 503")

	// Phase one has committed by the time the upstream is called.
	f.gen.onCall = func() {
		if _, msgs := f.counts(t); msgs != 1 {
			t.Errorf("user message not visible during generation: %d", msgs)
		}
	}

	_, err := f.svc.Submit(ctx, SubmitInput{UserID: uid, Text: "hello"})
	if !verr.IsCode(err, verr.CodeUpstreamRejected) {
		t.Fatalf("err = %v, want upstream_rejected", err)
	}

	convs, msgs := f.counts(t)
	if convs != 0 || msgs != 0 {
		t.Errorf("after failure: %d conversations, %d messages; want none", convs, msgs)
	}
}

func TestSubmitUpstreamFailureRestoresExistingConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "k")

	first, err := f.svc.Submit(ctx, SubmitInput{UserID: uid, Text: "first"})
	if err != nil {
		t.Fatal(err)
	}
	id := first.ConversationID

	var before models.Conversation
	if err := f.db.NewSelect().Model(&before).Where("id = ?", id).Scan(ctx); err != nil {
		t.Fatal(err)
	}

	f.gen.err = verr.Errorf(verr.CodeUpstreamUnreachable, "dial tcp: timeout")
	_, err = f.svc.Submit(ctx, SubmitInput{UserID: uid, ConversationID: &id, Text: "second"})
	if !verr.IsCode(err, verr.CodeUpstreamUnreachable) {
		t.Fatalf("err = %v", err)
	}

	var after models.Conversation
	if err := f.db.NewSelect().Model(&after).Where("id = ?", id).Scan(ctx); err != nil {
		t.Fatal(err)
	}
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Errorf("updated_at = %v, want restored %v", after.UpdatedAt, before.UpdatedAt)
	}

	convs, msgs := f.counts(t)
	if convs != 1 || msgs != 2 {
		t.Errorf("counts = %d, %d; want 1, 2", convs, msgs)
	}
}

func TestSubmitForeignConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "k1")
	intruder := f.user(t, "k2")

	res, err := f.svc.Submit(ctx, SubmitInput{UserID: owner, Text: "mine"})
	if err != nil {
		t.Fatal(err)
	}
	calls := f.gen.calls
	id := res.ConversationID

	_, err = f.svc.Submit(ctx, SubmitInput{UserID: intruder, ConversationID: &id, Text: "let me in"})
	if !verr.IsCode(err, verr.CodeNotFoundOrForbidden) {
		t.Fatalf("err = %v, want not_found_or_forbidden", err)
	}
	if f.gen.calls != calls {
		t.Error("upstream called for a foreign conversation")
	}

	missing := int64(9999)
	if _, err := f.svc.Submit(ctx, SubmitInput{UserID: owner, ConversationID: &missing, Text: "x"}); !verr.IsCode(err, verr.CodeNotFoundOrForbidden) {
		t.Errorf("missing conversation: %v", err)
	}

	convs, msgs := f.counts(t)
	if convs != 1 || msgs != 2 {
		t.Errorf("counts = %d, %d; want 1, 2", convs, msgs)
	}

	if _, err := f.svc.Messages(ctx, intruder, id); !verr.IsCode(err, verr.CodeNotFoundOrForbidden) {
		t.Errorf("Messages for intruder: %v", err)
	}
	if list, _ := f.svc.ListConversations(ctx, intruder, nil); len(list) != 0 {
		t.Errorf("intruder sees %d conversations", len(list))
	}
}

func TestSubmitPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noKey := f.user(t, "")
	if _, err := f.svc.Submit(ctx, SubmitInput{UserID: noKey, Text: "hi"}); !verr.IsCode(err, verr.CodeCredentialUnavailable) {
		t.Errorf("no key: %v", err)
	}

	withKey := f.user(t, "k")
	if _, err := f.svc.Submit(ctx, SubmitInput{UserID: withKey, Text: "   \n\t"}); !verr.IsCode(err, verr.CodeInvalidRequest) {
		t.Errorf("blank text: %v", err)
	}

	if _, err := f.svc.Submit(ctx, SubmitInput{UserID: uuid.New(), Text: "hi"}); !verr.IsCode(err, verr.CodeAuthenticationRequired) {
		t.Errorf("unknown user: %v", err)
	}

	if f.gen.calls != 0 {
		t.Errorf("upstream called %d times", f.gen.calls)
	}
	if convs, msgs := f.counts(t); convs != 0 || msgs != 0 {
		t.Errorf("counts = %d, %d; want 0, 0", convs, msgs)
	}
}

func TestSubmitUndecryptableKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "k")

	_, err := f.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("encrypted_api_key = ?", "not-hex").
		Where("id = ?", uid).
		Exec(ctx)
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.Submit(ctx, SubmitInput{UserID: uid, Text: "hi"})
	if !verr.IsCode(err, verr.CodeMalformedCiphertext) {
		t.Fatalf("err = %v, want malformed_ciphertext", err)
	}
	if f.gen.calls != 0 {
		t.Error("upstream called with an undecryptable key")
	}
}

func TestSubmitSurvivesClientCancel(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "k")

	ctx, cancel := context.WithCancel(context.Background())
	f.gen.onCall = cancel

	res, err := f.svc.Submit(ctx, SubmitInput{UserID: uid, Text: "hi"})
	if err != nil {
		t.Fatalf("Submit after client cancel: %v", err)
	}
	if res.Reply == "" {
		t.Error("empty reply")
	}
	if convs, msgs := f.counts(t); convs != 1 || msgs != 2 {
		t.Errorf("counts = %d, %d; want 1, 2", convs, msgs)
	}
}

func TestListConversationsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "k")

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		conv := &models.Conversation{OwnerID: uid, Title: string(rune('a' + i)), CreatedAt: ts, UpdatedAt: ts}
		if _, err := f.db.NewInsert().Model(conv).Exec(ctx); err != nil {
			t.Fatal(err)
		}
	}

	list, err := f.svc.ListConversations(ctx, uid, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].Title != "c" || list[2].Title != "a" {
		t.Errorf("order = %+v", list)
	}

	other := int64(42)
	if list, _ := f.svc.ListConversations(ctx, uid, &other); len(list) != 0 {
		t.Errorf("topic filter returned %d", len(list))
	}
}

func TestGeneratorErrorIsPassedThrough(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "k")
	sentinel := errors.New("boom")
	f.gen.err = sentinel

	_, err := f.svc.Submit(context.Background(), SubmitInput{UserID: uid, Text: "hi"})
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v", err)
	}
}
