package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"opentrivia/clock"
	"opentrivia/models"
	"opentrivia/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSource struct{}

func (stubSource) FetchQuestion(context.Context, string, models.RoomConfiguration) (*models.TriviaQuestion, error) {
	return &models.TriviaQuestion{
		Text:               "Capital of France?",
		Answers:            []string{"Paris", "Lyon"},
		CorrectAnswerIndex: 0,
		Difficulty:         models.DifficultyEasy,
	}, nil
}

type stubCategories struct {
	categories []models.Category
	err        error
}

func (s *stubCategories) LoadCategories(context.Context) ([]models.Category, error) {
	return s.categories, s.err
}

func (s *stubCategories) GetCategory(_ context.Context, id int) (models.Category, error) {
	if s.err != nil {
		return models.Category{}, s.err
	}
	for _, category := range s.categories {
		if category.ID == id {
			return category, nil
		}
	}
	return models.Category{}, fmt.Errorf("%w: %d", services.ErrCategoryNotFound, id)
}

func newRoomRouter(t *testing.T, categories *stubCategories) *gin.Engine {
	t.Helper()
	logger := zap.NewNop()
	loop := services.NewLoop(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go loop.Run(ctx)

	registry := services.NewRegistry(services.NewLifecycleBus(), services.RoomDeps{
		Exec:   loop,
		Clock:  clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		Source: stubSource{},
		Logger: logger,
	})
	h := NewRoomHandler(loop, registry, categories, logger)

	router := gin.New()
	router.GET("/api/rooms", h.ListRooms)
	router.POST("/api/rooms", h.CreateRoom)
	router.GET("/api/rooms/:id", h.GetRoom)
	router.GET("/api/categories", h.ListCategories)
	return router
}

func doJSON(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateAndGetRoom(t *testing.T) {
	categories := &stubCategories{categories: []models.Category{{ID: 9, Name: "General Knowledge"}}}
	router := newRoomRouter(t, categories)

	w := doJSON(router, http.MethodPost, "/api/rooms", map[string]any{
		"name":          "Friday Quiz",
		"categoryId":    9,
		"difficulty":    "medium",
		"maxSeconds":    20,
		"questionCount": 10,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /api/rooms = %d: %s", w.Code, w.Body)
	}
	var created models.RoomSummary
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Name != "Friday Quiz" || created.CategoryName != "General Knowledge" || created.Difficulty != "medium" || len(created.ID) != 5 {
		t.Fatalf("created = %+v", created)
	}

	w = doJSON(router, http.MethodGet, "/api/rooms/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET room = %d", w.Code)
	}

	w = doJSON(router, http.MethodGet, "/api/rooms", nil)
	var rooms []models.RoomSummary
	json.Unmarshal(w.Body.Bytes(), &rooms)
	if w.Code != http.StatusOK || len(rooms) != 1 || rooms[0].ID != created.ID {
		t.Fatalf("GET /api/rooms = %d %+v", w.Code, rooms)
	}
}

func TestGetUnknownRoom(t *testing.T) {
	router := newRoomRouter(t, &stubCategories{})
	if w := doJSON(router, http.MethodGet, "/api/rooms/zzzzz", nil); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestCreateRoomValidation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing name", map[string]any{"maxSeconds": 20}},
		{"too few seconds", map[string]any{"name": "x", "maxSeconds": 2}},
		{"bad difficulty", map[string]any{"name": "x", "maxSeconds": 20, "difficulty": "extreme"}},
		{"negative count", map[string]any{"name": "x", "maxSeconds": 20, "questionCount": -1}},
		{"unknown category", map[string]any{"name": "x", "maxSeconds": 20, "categoryId": 42}},
	}
	router := newRoomRouter(t, &stubCategories{categories: []models.Category{{ID: 9, Name: "General Knowledge"}}})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := doJSON(router, http.MethodPost, "/api/rooms", tt.body); w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", w.Code, w.Body)
			}
		})
	}
}

func TestCategoriesUnavailable(t *testing.T) {
	router := newRoomRouter(t, &stubCategories{err: errors.New("upstream down")})

	if w := doJSON(router, http.MethodGet, "/api/categories", nil); w.Code != http.StatusBadGateway {
		t.Fatalf("GET /api/categories = %d, want 502", w.Code)
	}
	body := map[string]any{"name": "x", "maxSeconds": 20, "categoryId": 9}
	if w := doJSON(router, http.MethodPost, "/api/rooms", body); w.Code != http.StatusBadGateway {
		t.Fatalf("POST /api/rooms = %d, want 502", w.Code)
	}
}

func TestListCategories(t *testing.T) {
	router := newRoomRouter(t, &stubCategories{categories: []models.Category{{ID: 9, Name: "General Knowledge"}}})

	w := doJSON(router, http.MethodGet, "/api/categories", nil)
	var categories []models.Category
	json.Unmarshal(w.Body.Bytes(), &categories)
	if w.Code != http.StatusOK || len(categories) != 1 || categories[0].ID != 9 {
		t.Fatalf("GET /api/categories = %d %+v", w.Code, categories)
	}
}

func TestCreateSession(t *testing.T) {
	sessions := services.NewSessionService("secret", time.Hour)
	router := gin.New()
	router.POST("/api/session", NewSessionHandler(sessions).CreateSession)

	w := doJSON(router, http.MethodPost, "/api/session", map[string]string{"nickname": " alice "})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	var resp struct {
		Ticket   string `json:"ticket"`
		Nickname string `json:"nickname"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Nickname != "alice" {
		t.Fatalf("nickname = %q", resp.Nickname)
	}
	if nickname, err := sessions.ParseTicket(resp.Ticket); err != nil || nickname != "alice" {
		t.Fatalf("ticket does not parse: %q, %v", nickname, err)
	}

	for _, nickname := range []string{"", "   "} {
		w := doJSON(router, http.MethodPost, "/api/session", map[string]string{"nickname": nickname})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("nickname %q: status = %d, want 400", nickname, w.Code)
		}
	}
}

func TestListResultsRejectsBadLimit(t *testing.T) {
	router := gin.New()
	router.GET("/api/results", NewResultsHandler(nil, zap.NewNop()).ListResults)

	for _, limit := range []string{"abc", "-1"} {
		if w := doJSON(router, http.MethodGet, "/api/results?limit="+limit, nil); w.Code != http.StatusBadRequest {
			t.Fatalf("limit %q: status = %d, want 400", limit, w.Code)
		}
	}
}
