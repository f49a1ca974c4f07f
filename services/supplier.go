package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"opentrivia/models"

	"go.uber.org/zap"
)

var (
	ErrTokenExhausted    = errors.New("trivia api: session token exhausted")
	ErrMalformedResponse = errors.New("trivia api: malformed response")
	ErrCategoryNotFound  = errors.New("category not found")
)

// APIError is a non-zero response code other than token exhaustion.
type APIError struct {
	Op   string
	Code int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("trivia api: %s returned response code %d", e.Op, e.Code)
}

// Response codes of the trivia API.
const (
	responseOK         = 0
	responseTokenEmpty = 4
)

// QuestionSource is what a GameRoom needs from the supplier. FetchQuestion
// blocks; rooms call it off the Loop.
type QuestionSource interface {
	FetchQuestion(ctx context.Context, roomID string, cfg models.RoomConfiguration) (*models.TriviaQuestion, error)
}

// QuestionSupplier talks to an Open Trivia DB compatible API. It hides the
// per-room session token: one is requested on a room's first fetch, reused
// afterwards, and reset once when the API reports it exhausted.
type QuestionSupplier struct {
	baseURL string
	client  *http.Client
	tokens  TokenStore
	logger  *zap.Logger

	randMu sync.Mutex
	rand   *rand.Rand

	categoriesMu     sync.Mutex
	categories       []models.Category
	categoriesLoaded bool
}

func NewQuestionSupplier(baseURL string, client *http.Client, tokens TokenStore, logger *zap.Logger) *QuestionSupplier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &QuestionSupplier{
		baseURL: baseURL,
		client:  client,
		tokens:  tokens,
		logger:  logger,
		rand:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

type rawQuestion struct {
	Category         string   `json:"category"`
	Type             string   `json:"type"`
	Difficulty       string   `json:"difficulty"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

type questionResponse struct {
	ResponseCode int           `json:"response_code"`
	Results      []rawQuestion `json:"results"`
}

type tokenResponse struct {
	ResponseCode    int    `json:"response_code"`
	ResponseMessage string `json:"response_message"`
	Token           string `json:"token"`
}

type categoryResponse struct {
	TriviaCategories []models.Category `json:"trivia_categories"`
}

// FetchQuestion returns one question matching cfg's category and
// difficulty, using (and if needed acquiring or resetting) roomID's token.
func (s *QuestionSupplier) FetchQuestion(ctx context.Context, roomID string, cfg models.RoomConfiguration) (*models.TriviaQuestion, error) {
	token, err := s.token(ctx, roomID)
	if err != nil {
		return nil, err
	}

	raw, err := s.requestQuestion(ctx, cfg, token)
	if errors.Is(err, ErrTokenExhausted) {
		s.logger.Info("Session token exhausted, resetting", zap.String("room_id", roomID))
		token, err = s.resetToken(ctx, roomID, token)
		if err != nil {
			return nil, err
		}
		raw, err = s.requestQuestion(ctx, cfg, token)
	}
	if err != nil {
		return nil, err
	}

	return s.normalize(raw)
}

// token returns roomID's cached token, requesting a new one on first use.
func (s *QuestionSupplier) token(ctx context.Context, roomID string) (string, error) {
	token, ok, err := s.tokens.Get(ctx, roomID)
	if err != nil {
		return "", err
	}
	if ok {
		return token, nil
	}

	var resp tokenResponse
	if err := s.getJSON(ctx, "/api_token.php", url.Values{"command": {"request"}}, &resp); err != nil {
		return "", fmt.Errorf("failed to request session token: %w", err)
	}
	if resp.ResponseCode != responseOK {
		return "", &APIError{Op: "token request", Code: resp.ResponseCode}
	}
	if resp.Token == "" {
		return "", fmt.Errorf("token request: %w", ErrMalformedResponse)
	}
	if err := s.tokens.Set(ctx, roomID, resp.Token); err != nil {
		return "", err
	}

	s.logger.Info("Acquired session token", zap.String("room_id", roomID))
	return resp.Token, nil
}

// resetToken asks the API to reset token and caches whatever token it
// hands back in its place.
func (s *QuestionSupplier) resetToken(ctx context.Context, roomID, token string) (string, error) {
	var resp tokenResponse
	query := url.Values{"command": {"reset"}, "token": {token}}
	if err := s.getJSON(ctx, "/api_token.php", query, &resp); err != nil {
		return "", fmt.Errorf("failed to reset session token: %w", err)
	}
	if resp.ResponseCode != responseOK {
		return "", &APIError{Op: "token reset", Code: resp.ResponseCode}
	}
	if resp.Token == "" {
		return "", fmt.Errorf("token reset: %w", ErrMalformedResponse)
	}
	if err := s.tokens.Set(ctx, roomID, resp.Token); err != nil {
		return "", err
	}
	return resp.Token, nil
}

func (s *QuestionSupplier) requestQuestion(ctx context.Context, cfg models.RoomConfiguration, token string) (rawQuestion, error) {
	query := url.Values{"amount": {"1"}}
	if cfg.Difficulty != models.DifficultyAny {
		query.Set("difficulty", string(cfg.Difficulty))
	}
	if cfg.Category != nil {
		query.Set("category", strconv.Itoa(cfg.Category.ID))
	}
	if token != "" {
		query.Set("token", token)
	}

	var resp questionResponse
	if err := s.getJSON(ctx, "/api.php", query, &resp); err != nil {
		return rawQuestion{}, fmt.Errorf("failed to fetch question: %w", err)
	}
	switch resp.ResponseCode {
	case responseOK:
	case responseTokenEmpty:
		return rawQuestion{}, ErrTokenExhausted
	default:
		return rawQuestion{}, &APIError{Op: "question request", Code: resp.ResponseCode}
	}
	if len(resp.Results) == 0 {
		return rawQuestion{}, fmt.Errorf("question request returned no results: %w", ErrMalformedResponse)
	}
	return resp.Results[0], nil
}

// normalize merges the correct answer into the incorrect ones, shuffles,
// and records where the correct text ended up.
func (s *QuestionSupplier) normalize(raw rawQuestion) (*models.TriviaQuestion, error) {
	if raw.Question == "" || raw.CorrectAnswer == "" || len(raw.IncorrectAnswers) == 0 {
		return nil, fmt.Errorf("incomplete question record: %w", ErrMalformedResponse)
	}

	correct := html.UnescapeString(raw.CorrectAnswer)
	answers := make([]string, 0, len(raw.IncorrectAnswers)+1)
	for _, answer := range raw.IncorrectAnswers {
		answers = append(answers, html.UnescapeString(answer))
	}
	answers = append(answers, correct)

	s.randMu.Lock()
	s.rand.Shuffle(len(answers), func(i, j int) {
		answers[i], answers[j] = answers[j], answers[i]
	})
	s.randMu.Unlock()

	return &models.TriviaQuestion{
		Text:               html.UnescapeString(raw.Question),
		Answers:            answers,
		CorrectAnswerIndex: slices.Index(answers, correct),
		CategoryName:       html.UnescapeString(raw.Category),
		Difficulty:         models.Difficulty(raw.Difficulty),
	}, nil
}

// LoadCategories fetches the category list once per process. A failed
// load is not cached.
func (s *QuestionSupplier) LoadCategories(ctx context.Context) ([]models.Category, error) {
	s.categoriesMu.Lock()
	defer s.categoriesMu.Unlock()

	if !s.categoriesLoaded {
		var resp categoryResponse
		if err := s.getJSON(ctx, "/api_category.php", nil, &resp); err != nil {
			return nil, fmt.Errorf("failed to load categories: %w", err)
		}
		s.categories = resp.TriviaCategories
		s.categoriesLoaded = true
		s.logger.Info("Loaded trivia categories", zap.Int("count", len(s.categories)))
	}

	return slices.Clone(s.categories), nil
}

// GetCategory looks id up in the category cache, loading it if needed.
func (s *QuestionSupplier) GetCategory(ctx context.Context, id int) (models.Category, error) {
	categories, err := s.LoadCategories(ctx)
	if err != nil {
		return models.Category{}, err
	}
	for _, category := range categories {
		if category.ID == id {
			return category, nil
		}
	}
	return models.Category{}, fmt.Errorf("%w: %d", ErrCategoryNotFound, id)
}

// ForgetRoom drops roomID's cached token.
func (s *QuestionSupplier) ForgetRoom(ctx context.Context, roomID string) error {
	return s.tokens.Delete(ctx, roomID)
}

// Watch removes a room's token when the room is deleted. The store call
// runs through exec.Go so a slow store never stalls the Loop.
func (s *QuestionSupplier) Watch(bus *LifecycleBus, exec Executor) (unsubscribe func()) {
	return bus.Subscribe(func(event LifecycleEvent) {
		if event.Kind != RoomDeleted {
			return
		}
		roomID := event.Room.ID
		exec.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.ForgetRoom(ctx, roomID); err != nil {
				s.logger.Warn("Failed to forget session token", zap.String("room_id", roomID), zap.Error(err))
			}
		})
	})
}

func (s *QuestionSupplier) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := s.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
