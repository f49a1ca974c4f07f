package services

import (
	"context"
	"sort"
	"time"

	"opentrivia/clock"
	"opentrivia/models"

	"go.uber.org/zap"
)

const (
	tickInterval = time.Second

	// FetchRetryDelay is how long a room waits before asking for a
	// question again after the supplier failed.
	FetchRetryDelay = 5 * time.Second

	// NextQuestionDelay is the pause between grading and the next fetch.
	NextQuestionDelay = 5 * time.Second

	fetchTimeout = 30 * time.Second
)

type RoomState int

const (
	AwaitingQuestion RoomState = iota
	QuestionActive
	Grading
	GameOver
)

func (s RoomState) String() string {
	switch s {
	case AwaitingQuestion:
		return "awaiting_question"
	case QuestionActive:
		return "question_active"
	case Grading:
		return "grading"
	case GameOver:
		return "game_over"
	}
	return "unknown"
}

// ResultRecorder archives finished games. RecordGame is called off the
// Loop.
type ResultRecorder interface {
	RecordGame(ctx context.Context, result *models.GameResult) error
}

// RoomDeps are the collaborators every GameRoom shares.
type RoomDeps struct {
	Exec    Executor
	Clock   clock.Clock
	Source  QuestionSource
	Results ResultRecorder // optional
	Logger  *zap.Logger
}

// GameRoom runs the question cycle for one room:
// AwaitingQuestion -> QuestionActive -> Grading -> AwaitingQuestion or
// GameOver. Every method must be called on the Loop.
type GameRoom struct {
	*Membership

	name          string
	config        models.RoomConfiguration
	deleteOnEmpty bool
	emptySince    time.Time

	state             RoomState
	stats             map[*User]*models.UserStatistics
	question          *models.TriviaQuestion
	questionNumber    int
	secondsLeft       int
	acceptAnswers     bool
	questionsAnswered int

	// generation invalidates timer callbacks that were already queued when
	// their timer was replaced or stopped.
	timer      *clock.Timer
	generation int
	deleted    bool
	ctx        context.Context
	cancel     context.CancelFunc

	registry *Registry
	deps     RoomDeps
	logger   *zap.Logger
}

func newGameRoom(id, name string, deleteOnEmpty bool, cfg models.RoomConfiguration, registry *Registry, deps RoomDeps) *GameRoom {
	ctx, cancel := context.WithCancel(context.Background())
	r := &GameRoom{
		name:          name,
		config:        cfg,
		deleteOnEmpty: deleteOnEmpty,
		emptySince:    deps.Clock.Now(),
		stats:         make(map[*User]*models.UserStatistics),
		ctx:           ctx,
		cancel:        cancel,
		registry:      registry,
		deps:          deps,
		logger:        deps.Logger.With(zap.String("room_id", id)),
	}
	r.Membership = NewMembership(id, r)
	return r
}

func (r *GameRoom) Name() string { return r.name }
func (r *GameRoom) Config() models.RoomConfiguration { return r.config }
func (r *GameRoom) DeleteOnEmpty() bool { return r.deleteOnEmpty }
func (r *GameRoom) State() RoomState { return r.state }
func (r *GameRoom) SecondsLeft() int { return r.secondsLeft }
func (r *GameRoom) AcceptingAnswers() bool { return r.acceptAnswers }
func (r *GameRoom) QuestionsAnswered() int { return r.questionsAnswered }
func (r *GameRoom) Deleted() bool { return r.deleted }

// EmptySince is when the room last lost its final member (or its creation
// time if nobody ever joined). It is zero while the room has members.
func (r *GameRoom) EmptySince() time.Time { return r.emptySince }

func (r *GameRoom) CurrentQuestion() *models.TriviaQuestion { return r.question }

// Stats returns a copy of user's statistics.
func (r *GameRoom) Stats(user *User) (models.UserStatistics, bool) {
	stats, ok := r.stats[user]
	if !ok {
		return models.UserStatistics{}, false
	}
	return *stats, true
}

func (r *GameRoom) Summary() models.RoomSummary {
	return models.NewRoomSummary(r.ID(), r.name, r.Len(), r.config)
}

// Start begins the first question cycle.
func (r *GameRoom) Start() {
	r.requestQuestion()
}

func (r *GameRoom) requestQuestion() {
	if r.deleted {
		return
	}
	r.state = AwaitingQuestion

	roomID, cfg := r.ID(), r.config
	ctx := r.ctx
	r.deps.Exec.Go(func() {
		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()
		question, err := r.deps.Source.FetchQuestion(fetchCtx, roomID, cfg)
		r.deps.Exec.Post(func() {
			r.onQuestion(question, err)
		})
	})
}

// onQuestion is the continuation of a fetch. The room may have been
// deleted while the fetch was in flight.
func (r *GameRoom) onQuestion(question *models.TriviaQuestion, err error) {
	if r.deleted || r.state != AwaitingQuestion {
		return
	}
	if err != nil {
		r.logger.Warn("Failed to fetch question, retrying", zap.Error(err), zap.Duration("delay", FetchRetryDelay))
		r.schedule(FetchRetryDelay, r.requestQuestion)
		return
	}
	r.startQuestion(question)
}

func (r *GameRoom) startQuestion(question *models.TriviaQuestion) {
	r.question = question
	r.questionNumber = r.questionsAnswered + 1
	r.secondsLeft = r.config.MaxSeconds
	r.acceptAnswers = true
	r.state = QuestionActive

	r.logger.Debug("Question started", zap.Int("question_number", r.questionNumber))
	r.Broadcast(EventSetQuestion, question.View(r.questionNumber, r.config.QuestionCount))
	r.schedule(tickInterval, r.tick)
}

func (r *GameRoom) tick() {
	if r.state != QuestionActive {
		return
	}
	r.secondsLeft--
	r.Broadcast(EventSecondsLeft, secondsLeftPayload{Seconds: r.secondsLeft})

	if r.secondsLeft <= 0 {
		r.grade()
		return
	}
	r.schedule(tickInterval, r.tick)
}

func (r *GameRoom) grade() {
	r.state = Grading
	r.acceptAnswers = false
	r.Broadcast(EventEndQuestion, nil)

	value := r.question.Difficulty.Points()
	correct := r.question.CorrectAnswerIndex
	for _, member := range r.Members() {
		stats := r.stats[member]
		var result int
		switch {
		case stats.SelectedAnswerIndex == models.NoAnswer && r.config.CanSkipQuestions:
			result = AnswerSkipped
			stats.PointsChange = 0
			stats.QuestionsWrong++
		case stats.SelectedAnswerIndex == correct:
			result = AnswerCorrect
			stats.PointsChange = value
			stats.Points += value
			stats.QuestionsRight++
		default:
			result = AnswerIncorrect
			stats.PointsChange = -value
			stats.Points -= value
			stats.QuestionsWrong++
		}
		if stats.Points < 0 {
			stats.Points = 0
		}
		member.Send(EventAnswerResult, answerResultPayload{Result: result, CorrectAnswerIndex: correct})
	}
	r.Broadcast(EventSetUserStats, r.statsEntries())

	for _, stats := range r.stats {
		stats.SelectedAnswerIndex = models.NoAnswer
	}
	r.questionsAnswered++

	if r.config.QuestionCount != 0 && r.questionsAnswered == r.config.QuestionCount {
		r.finish()
		return
	}
	r.schedule(NextQuestionDelay, r.requestQuestion)
}

func (r *GameRoom) finish() {
	r.state = GameOver
	ranking := r.Ranking()
	r.Broadcast(EventGameOver, ranking)
	r.logger.Info("Game over", zap.Int("questions", r.questionsAnswered), zap.Int("players", len(ranking)))

	r.recordResult(ranking)
	if r.deleteOnEmpty {
		r.registry.DeleteRoom(r)
	}
}

func (r *GameRoom) recordResult(ranking []models.UserStatsEntry) {
	if r.deps.Results == nil {
		return
	}
	summary := r.Summary()
	result := &models.GameResult{
		RoomID:        r.ID(),
		RoomName:      r.name,
		CategoryName:  summary.CategoryName,
		Difficulty:    summary.Difficulty,
		QuestionCount: r.questionsAnswered,
		FinishedAt:    r.deps.Clock.Now(),
	}
	for i, entry := range ranking {
		result.Players = append(result.Players, models.PlayerResult{
			Rank:           i + 1,
			Nickname:       entry.Nickname,
			Points:         entry.Points,
			QuestionsRight: entry.QuestionsRight,
			QuestionsWrong: entry.QuestionsWrong,
		})
	}

	results, logger := r.deps.Results, r.logger
	r.deps.Exec.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := results.RecordGame(ctx, result); err != nil {
			logger.Error("Failed to record game result", zap.Error(err))
		}
	})
}

// SubmitAnswer records user's choice for the open question. Anything other
// than a member's first in-range answer while answers are accepted is
// ignored.
func (r *GameRoom) SubmitAnswer(user *User, index int) {
	stats, ok := r.stats[user]
	if !ok || !r.acceptAnswers || r.question == nil {
		return
	}
	if stats.SelectedAnswerIndex != models.NoAnswer {
		return
	}
	if index < 0 || index >= len(r.question.Answers) {
		return
	}
	stats.SelectedAnswerIndex = index
}

// Join adds user with fresh statistics and catches them up on the game.
func (r *GameRoom) Join(user *User) {
	if r.deleted || r.IsMember(user) {
		return
	}
	r.Membership.Join(user)
	r.stats[user] = models.NewUserStatistics()
	r.emptySince = time.Time{}

	user.Send(EventEnteredRoom, enteredRoomPayload{ID: r.ID(), Name: r.name})
	switch {
	case r.state == GameOver:
		user.Send(EventGameOver, r.Ranking())
	case r.question != nil:
		user.Send(EventSetQuestion, r.question.View(r.questionNumber, r.config.QuestionCount))
		if r.state == QuestionActive {
			user.Send(EventSecondsLeft, secondsLeftPayload{Seconds: r.secondsLeft})
		}
	}
	r.Broadcast(EventSetUserStats, r.statsEntries())
	r.registry.publish(RoomUpdated, r)
}

// Leave removes user and their statistics. An emptied room is deleted if
// it was created with deleteOnEmpty.
func (r *GameRoom) Leave(user *User) {
	if !r.IsMember(user) {
		return
	}
	r.Membership.Leave(user)
	delete(r.stats, user)
	user.Send(EventLeftRoom, nil)
	r.Broadcast(EventSetUserStats, r.statsEntries())

	if r.Len() == 0 {
		r.emptySince = r.deps.Clock.Now()
		if r.deleteOnEmpty {
			r.registry.DeleteRoom(r)
			return
		}
	}
	r.registry.publish(RoomUpdated, r)
}

// close stops all room activity. Only the registry calls it.
func (r *GameRoom) close() {
	if r.deleted {
		return
	}
	r.deleted = true
	r.acceptAnswers = false
	r.stopTimer()
	r.cancel()
	for _, member := range r.detachAll() {
		delete(r.stats, member)
	}
}

// schedule replaces the room's timer with one that runs fn on the Loop
// after d.
func (r *GameRoom) schedule(d time.Duration, fn func()) {
	r.stopTimer()
	generation := r.generation
	r.timer = r.deps.Clock.AfterFunc(d, func() {
		r.deps.Exec.Post(func() {
			if r.deleted || generation != r.generation {
				return
			}
			fn()
		})
	})
}

func (r *GameRoom) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.generation++
}

func (r *GameRoom) statsEntries() []models.UserStatsEntry {
	entries := make([]models.UserStatsEntry, 0, r.Len())
	for _, member := range r.Members() {
		entries = append(entries, models.UserStatsEntry{
			Nickname:       member.Nickname,
			UserStatistics: *r.stats[member],
		})
	}
	return entries
}

// Ranking orders the members by points, then accuracy. Members who have
// not been graded yet have no accuracy and rank below everyone who has.
// Remaining ties keep join order.
func (r *GameRoom) Ranking() []models.UserStatsEntry {
	entries := r.statsEntries()
	sort.SliceStable(entries, func(i, j int) bool {
		return ranksAbove(&entries[i].UserStatistics, &entries[j].UserStatistics)
	})
	return entries
}

func ranksAbove(a, b *models.UserStatistics) bool {
	if a.Points != b.Points {
		return a.Points > b.Points
	}
	ratioA, okA := a.Accuracy()
	ratioB, okB := b.Accuracy()
	switch {
	case okA && okB:
		return ratioA > ratioB
	case okA != okB:
		return okA
	}
	return false
}

type secondsLeftPayload struct {
	Seconds int `json:"seconds"`
}

type answerResultPayload struct {
	Result             int `json:"result"`
	CorrectAnswerIndex int `json:"correctAnswerIndex"`
}

type enteredRoomPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
