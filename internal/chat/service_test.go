package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dav22-wa/uni-mood-share/internal/fanout"
	"github.com/dav22-wa/uni-mood-share/internal/models"
	"github.com/dav22-wa/uni-mood-share/internal/rooms"
)

// fakeStore is an in-memory message store for service tests. It can
// inject per-call failures to drive retry and partial-failure paths.
type fakeStore struct {
	messages map[string]*models.Message
	receipts map[string]map[uuid.UUID]bool
	reports  []*models.Report
	nextSeq  int64

	insertErrs  []error // consumed one per InsertMessage call
	receiptErrs map[string]error
	getCalls    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages:    make(map[string]*models.Message),
		receipts:    make(map[string]map[uuid.UUID]bool),
		receiptErrs: make(map[string]error),
	}
}

func (f *fakeStore) InsertMessage(_ context.Context, msg *models.Message) error {
	if len(f.insertErrs) > 0 {
		err := f.insertErrs[0]
		f.insertErrs = f.insertErrs[1:]
		if err != nil {
			return err
		}
	}
	f.nextSeq++
	msg.Seq = f.nextSeq
	cp := *msg
	f.messages[msg.ID] = &cp
	return nil
}

func (f *fakeStore) GetMessage(_ context.Context, id string) (*models.Message, error) {
	f.getCalls++
	msg, ok := f.messages[id]
	if !ok {
		return nil, nil
	}
	cp := *msg
	return &cp, nil
}

func (f *fakeStore) ListMessages(_ context.Context, roomID uuid.UUID, afterSeq int64, limit int) ([]models.Message, error) {
	var cursorAt time.Time
	if afterSeq > 0 {
		for _, msg := range f.messages {
			if msg.Seq == afterSeq {
				cursorAt = msg.CreatedAt
			}
		}
	}

	var out []models.Message
	for _, msg := range f.messages {
		if msg.RoomID != roomID || msg.Deleted {
			continue
		}
		if afterSeq > 0 {
			if msg.CreatedAt.Before(cursorAt) {
				continue
			}
			if msg.CreatedAt.Equal(cursorAt) && msg.Seq <= afterSeq {
				continue
			}
		}
		out = append(out, *msg)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) MarkDeleted(_ context.Context, id string) error {
	if msg, ok := f.messages[id]; ok {
		msg.Deleted = true
	}
	return nil
}

func (f *fakeStore) TouchRoom(_ context.Context, _ uuid.UUID) error { return nil }

func (f *fakeStore) UpsertReceipt(_ context.Context, messageID string, userID uuid.UUID) error {
	if err := f.receiptErrs[messageID]; err != nil {
		return err
	}
	if f.receipts[messageID] == nil {
		f.receipts[messageID] = make(map[uuid.UUID]bool)
	}
	f.receipts[messageID][userID] = true
	return nil
}

func (f *fakeStore) HasReceipt(_ context.Context, messageID string) (bool, error) {
	return len(f.receipts[messageID]) > 0, nil
}

func (f *fakeStore) ListUnread(_ context.Context, roomID, receiverID uuid.UUID) ([]string, error) {
	var ids []string
	for seq := int64(1); seq <= f.nextSeq; seq++ {
		for id, msg := range f.messages {
			if msg.Seq != seq || msg.RoomID != roomID || msg.Deleted {
				continue
			}
			if msg.ReceiverID == nil || *msg.ReceiverID != receiverID {
				continue
			}
			if !f.receipts[id][receiverID] {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func (f *fakeStore) InsertReport(_ context.Context, report *models.Report) error {
	report.ID = int64(len(f.reports) + 1)
	report.CreatedAt = time.Now()
	f.reports = append(f.reports, report)
	return nil
}

func (f *fakeStore) CountReports(_ context.Context, messageID string) (int64, error) {
	var n int64
	for _, r := range f.reports {
		if r.MessageID == messageID {
			n++
		}
	}
	return n, nil
}

func testUser() *models.User {
	return &models.User{ID: uuid.New(), DisplayName: "tester"}
}

func testRoom(kind models.RoomKind, key string) *models.Room {
	return &models.Room{ID: uuid.New(), Kind: kind, Key: key}
}

func newTestService(t *testing.T) (*Service, *fakeStore, *fanout.Hub) {
	t.Helper()
	fs := newFakeStore()
	hub := fanout.NewHub()
	t.Cleanup(func() { hub.Close() })
	return NewService(fs, hub), fs, hub
}

func TestAppendAssignsOrderAndAnnounces(t *testing.T) {
	svc, _, hub := newTestService(t)
	ctx := context.Background()
	room := testRoom(models.RoomMood, "happy")
	sender := testUser()

	sub, err := hub.Subscribe(ctx, fanout.RoomTopic(room.ID))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	first, err := svc.Append(ctx, sender, room, AppendInput{Body: "hello"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	second, err := svc.Append(ctx, sender, room, AppendInput{Body: "again"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if first.Seq >= second.Seq {
		t.Errorf("sequence not monotonic: %d then %d", first.Seq, second.Seq)
	}
	if first.ID == second.ID {
		t.Error("message ids must be unique")
	}

	select {
	case hint := <-sub.Hints():
		if hint.Kind != fanout.KindMessage {
			t.Errorf("expected message hint, got %q", hint.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("append published no hint")
	}
}

func TestAppendRejectsEmpty(t *testing.T) {
	svc, _, _ := newTestService(t)
	room := testRoom(models.RoomGeneral, "general")

	if _, err := svc.Append(context.Background(), testUser(), room, AppendInput{Body: "   "}); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	// Attachment-only posts are fine.
	if _, err := svc.Append(context.Background(), testUser(), room, AppendInput{AttachmentURL: "/blobs/x.png"}); err != nil {
		t.Errorf("attachment-only append: %v", err)
	}
}

func TestAppendRejectsOverlongBody(t *testing.T) {
	svc, _, _ := newTestService(t)
	room := testRoom(models.RoomGeneral, "general")

	long := strings.Repeat("a", MaxBodyLen+1)
	if _, err := svc.Append(context.Background(), testUser(), room, AppendInput{Body: long}); !errors.Is(err, ErrBodyTooLong) {
		t.Errorf("expected ErrBodyTooLong, got %v", err)
	}
	// A body exactly at the cap goes through untouched.
	max := strings.Repeat("b", MaxBodyLen)
	msg, err := svc.Append(context.Background(), testUser(), room, AppendInput{Body: max})
	if err != nil {
		t.Fatalf("append at cap: %v", err)
	}
	if msg.Body != max {
		t.Errorf("body altered: %d runes", len([]rune(msg.Body)))
	}
}

func TestAppendRejectsOutsiderInDirectRoom(t *testing.T) {
	svc, _, _ := newTestService(t)
	a, b := testUser(), testUser()
	room := testRoom(models.RoomDirect, rooms.DirectKey(a.ID, b.ID))

	if _, err := svc.Append(context.Background(), testUser(), room, AppendInput{Body: "hi"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Append(context.Background(), a, room, AppendInput{Body: "hi", ReceiverID: &b.ID}); err != nil {
		t.Errorf("participant append: %v", err)
	}
}

func TestAppendReplyValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	room := testRoom(models.RoomMood, "lonely")
	other := testRoom(models.RoomMood, "excited")
	sender := testUser()

	elsewhere, err := svc.Append(ctx, sender, other, AppendInput{Body: "far away"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if _, err := svc.Append(ctx, sender, room, AppendInput{Body: "re", ReplyTo: elsewhere.ID}); !errors.Is(err, ErrBadReply) {
		t.Errorf("cross-room reply: expected ErrBadReply, got %v", err)
	}
	// Reply to a message that no longer exists still posts.
	if _, err := svc.Append(ctx, sender, room, AppendInput{Body: "re", ReplyTo: ulidLike()}); err != nil {
		t.Errorf("reply to vanished target: %v", err)
	}
}

func ulidLike() string { return "01HV0000000000000000000000" }

func TestAppendRetriesTransientInserts(t *testing.T) {
	svc, fs, _ := newTestService(t)
	fs.insertErrs = []error{ErrTransient, ErrTransient}

	msg, err := svc.Append(context.Background(), testUser(), testRoom(models.RoomGeneral, "general"), AppendInput{Body: "persist"})
	if err != nil {
		t.Fatalf("expected retries to succeed, got %v", err)
	}
	if msg.Seq == 0 {
		t.Error("message never reached the store")
	}
}

func TestAppendStopsOnPermanentError(t *testing.T) {
	svc, fs, _ := newTestService(t)
	permanent := errors.New("constraint violation")
	fs.insertErrs = []error{permanent, nil}

	if _, err := svc.Append(context.Background(), testUser(), testRoom(models.RoomGeneral, "general"), AppendInput{Body: "x"}); !errors.Is(err, permanent) {
		t.Errorf("permanent error should not be retried, got %v", err)
	}
	if len(fs.messages) != 0 {
		t.Error("no message should be stored after a permanent failure")
	}
}

func TestListSkipsDeleted(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	room := testRoom(models.RoomMood, "stressed")
	sender := testUser()

	kept, _ := svc.Append(ctx, sender, room, AppendInput{Body: "kept"})
	gone, _ := svc.Append(ctx, sender, room, AppendInput{Body: "gone"})

	if err := svc.SoftDelete(ctx, sender, gone.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	msgs, err := svc.List(ctx, sender, room, 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != kept.ID {
		t.Errorf("expected only the kept message, got %d messages", len(msgs))
	}

	// The deleted message is gone for readers but not for moderation.
	if _, err := svc.GetVisible(ctx, gone.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted message should be invisible, got %v", err)
	}
}

func TestListCursor(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	room := testRoom(models.RoomGeneral, "general")
	sender := testUser()

	for i := 0; i < 5; i++ {
		if _, err := svc.Append(ctx, sender, room, AppendInput{Body: "m"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	page, err := svc.List(ctx, sender, room, 0, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(page))
	}
	rest, err := svc.List(ctx, sender, room, page[1].Seq, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rest) != 3 {
		t.Errorf("expected 3 remaining, got %d", len(rest))
	}
	if len(rest) > 0 && rest[0].Seq <= page[1].Seq {
		t.Error("cursor page overlaps previous page")
	}
}

func TestSoftDeleteAuthorization(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	room := testRoom(models.RoomGeneral, "general")
	sender := testUser()

	msg, _ := svc.Append(ctx, sender, room, AppendInput{Body: "target"})

	stranger := testUser()
	if err := svc.SoftDelete(ctx, stranger, msg.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger delete: expected ErrForbidden, got %v", err)
	}
	// A rejected delete leaves the message visible.
	msgs, err := svc.List(ctx, sender, room, 0, 10)
	if err != nil || len(msgs) != 1 {
		t.Errorf("message should survive rejected delete, got %d (err=%v)", len(msgs), err)
	}

	mod := testUser()
	mod.IsModerator = true
	if err := svc.SoftDelete(ctx, mod, msg.ID); err != nil {
		t.Errorf("moderator delete: %v", err)
	}

	// Deleting twice reports not found, not success.
	if err := svc.SoftDelete(ctx, sender, msg.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: expected ErrNotFound, got %v", err)
	}
}

func TestThreadIndex(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	room := testRoom(models.RoomGeneral, "general")
	sender := testUser()

	root, _ := svc.Append(ctx, sender, room, AppendInput{Body: "a long enough root message"})
	reply, _ := svc.Append(ctx, sender, room, AppendInput{Body: "re", ReplyTo: root.ID})
	orphan, _ := svc.Append(ctx, sender, room, AppendInput{Body: "re2", ReplyTo: ulidLike()})

	index, err := svc.ThreadIndex(ctx, []models.Message{*reply, *orphan})
	if err != nil {
		t.Fatalf("ThreadIndex: %v", err)
	}
	tc, ok := index[root.ID]
	if !ok {
		t.Fatal("expected context for the resolvable reply")
	}
	if tc.SenderID != sender.ID || tc.Preview == "" {
		t.Errorf("bad thread context: %+v", tc)
	}
	if _, ok := index[orphan.ReplyTo]; ok {
		t.Error("vanished target should fall back to no context")
	}

	// Deleting the target removes its context on the next build.
	if err := svc.SoftDelete(ctx, sender, root.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	index, err = svc.ThreadIndex(ctx, []models.Message{*reply})
	if err != nil {
		t.Fatalf("ThreadIndex: %v", err)
	}
	if len(index) != 0 {
		t.Error("deleted target should yield no context")
	}
}

// Reply targets that sit inside the fetched page resolve from the
// page itself; only targets outside the window cost a store lookup.
func TestThreadIndexResolvesFromWindow(t *testing.T) {
	svc, fs, _ := newTestService(t)
	ctx := context.Background()
	room := testRoom(models.RoomGeneral, "general")
	sender := testUser()

	root, _ := svc.Append(ctx, sender, room, AppendInput{Body: "root"})
	reply, _ := svc.Append(ctx, sender, room, AppendInput{Body: "re", ReplyTo: root.ID})

	fs.getCalls = 0
	index, err := svc.ThreadIndex(ctx, []models.Message{*root, *reply})
	if err != nil {
		t.Fatalf("ThreadIndex: %v", err)
	}
	if _, ok := index[root.ID]; !ok {
		t.Fatal("expected context for the in-window target")
	}
	if fs.getCalls != 0 {
		t.Errorf("in-window target cost %d store lookups", fs.getCalls)
	}

	// Without the root on the page, resolution falls back to the store.
	fs.getCalls = 0
	if _, err := svc.ThreadIndex(ctx, []models.Message{*reply}); err != nil {
		t.Fatalf("ThreadIndex: %v", err)
	}
	if fs.getCalls != 1 {
		t.Errorf("out-of-window target should cost one lookup, got %d", fs.getCalls)
	}
}

func TestThreadPreviewTruncated(t *testing.T) {
	long := make([]rune, PreviewLen*2)
	for i := range long {
		long[i] = 'x'
	}
	got := truncate(string(long), PreviewLen)
	if len([]rune(got)) != PreviewLen+1 {
		t.Errorf("expected %d runes plus ellipsis, got %d", PreviewLen, len([]rune(got)))
	}
}
