package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dav22-wa/uni-mood-share/internal/api/middleware"
	"github.com/dav22-wa/uni-mood-share/internal/models"
	"github.com/dav22-wa/uni-mood-share/internal/rooms"
)

func roomRequest(method, kind, key, body string) *http.Request {
	req := httptest.NewRequest(method, "/rooms/"+kind+"/"+key+"/messages", strings.NewReader(body))

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("kind", kind)
	rctx.URLParams.Add("key", key)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, middleware.UserContextKey, &models.User{ID: uuid.New()})
	return req.WithContext(ctx)
}

// Direct rooms carry an addressed receiver, which only the /dm routes
// set. The generic room routes must refuse the direct kind outright
// so a DM can never be created without one.
func TestRoomRoutesRejectDirectKind(t *testing.T) {
	h := &Handler{}
	key := rooms.DirectKey(uuid.New(), uuid.New())

	post := httptest.NewRecorder()
	h.PostRoomMessage(post, roomRequest(http.MethodPost, "direct", key, `{"body":"hi"}`))
	if post.Code != http.StatusNotFound {
		t.Errorf("POST: expected 404 for direct kind, got %d", post.Code)
	}

	list := httptest.NewRecorder()
	h.ListRoomMessages(list, roomRequest(http.MethodGet, "direct", key, ""))
	if list.Code != http.StatusNotFound {
		t.Errorf("GET: expected 404 for direct kind, got %d", list.Code)
	}
	if !strings.Contains(list.Body.String(), "/dm") {
		t.Errorf("error should point at /dm, got %s", list.Body.String())
	}
}
