package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"groupquiz-service/internal/domain"
)

// RunService owns in-flight quiz runs: one per (session, user). A run holds
// the resolved question sets, the in-memory response list, and the per-set
// countdown; every committed advance upserts the durable progress record.
type RunService struct {
	progress    ProgressStore
	leaderboard LeaderboardStore
	questions   QuestionSetRepository
	notifier    Notifier
	clock       func() time.Time
	logger      *slog.Logger

	mu   sync.Mutex
	runs map[string]*Run
}

func NewRunService(progress ProgressStore, leaderboard LeaderboardStore, questions QuestionSetRepository, notifier Notifier, logger *slog.Logger) *RunService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunService{
		progress:    progress,
		leaderboard: leaderboard,
		questions:   questions,
		notifier:    notifier,
		clock:       time.Now,
		logger:      logger,
		runs:        make(map[string]*Run),
	}
}

func runKey(sessionID, userID string) string { return sessionID + "|" + userID }

// StartRun builds (or returns) the run for (session, user), resolving the
// session's share tokens into ordered difficulty sets. An existing
// non-completed progress record resumes the run at its recorded position.
func (s *RunService) StartRun(ctx context.Context, session domain.Session, userID string, settings domain.QuizSettings) (*Run, error) {
	s.mu.Lock()
	if run, ok := s.runs[runKey(session.ID, userID)]; ok {
		s.mu.Unlock()
		return run, nil
	}
	s.mu.Unlock()

	sets, err := s.loadSets(ctx, session)
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return nil, domain.ErrQuestionSetNotFound
	}

	run := &Run{
		service:   s,
		session:   session,
		userID:    userID,
		sets:      sets,
		responses: make(map[int]string),
		settings:  settings,
		startedAt: s.clock(),
	}

	record, err := s.progress.Get(ctx, session.ID, userID)
	switch {
	case err == nil && !record.Completed:
		run.resumeFrom(record)
	case err != nil && !errors.Is(err, domain.ErrProgressNotFound):
		s.logger.Warn("progress lookup failed, starting fresh", "session", session.ID, "user", userID, "error", err)
	}

	s.mu.Lock()
	if existing, ok := s.runs[runKey(session.ID, userID)]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.runs[runKey(session.ID, userID)] = run
	s.mu.Unlock()

	run.startSetTimer()
	return run, nil
}

// Run returns the in-flight run for (session, user), if any.
func (s *RunService) Run(sessionID, userID string) (*Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runKey(sessionID, userID)]
	return run, ok
}

// Drop discards the in-memory run without touching persisted progress.
func (s *RunService) Drop(sessionID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[runKey(sessionID, userID)]; ok {
		run.stopTimer()
		delete(s.runs, runKey(sessionID, userID))
	}
}

// loadSets resolves the session's share tokens in canonical difficulty order.
// Missing tiers are skipped; a session with no resolvable tier is unusable.
func (s *RunService) loadSets(ctx context.Context, session domain.Session) ([]domain.DifficultyGroup, error) {
	ordered := make([]domain.Difficulty, 0, len(session.QuestionTokens))
	for _, difficulty := range domain.Difficulties {
		if _, ok := session.QuestionTokens[string(difficulty)]; ok {
			ordered = append(ordered, difficulty)
		}
	}
	// Unknown difficulty names keep a stable order after the canonical ones.
	extras := make([]string, 0)
	for name := range session.QuestionTokens {
		known := false
		for _, difficulty := range domain.Difficulties {
			if string(difficulty) == name {
				known = true
				break
			}
		}
		if !known {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	for _, name := range extras {
		ordered = append(ordered, domain.Difficulty(name))
	}

	sets := make([]domain.DifficultyGroup, 0, len(ordered))
	for _, difficulty := range ordered {
		tok := session.QuestionTokens[string(difficulty)]
		set, err := s.questions.GetSet(ctx, tok)
		if err != nil {
			return nil, fmt.Errorf("resolve %s set: %w", difficulty, err)
		}
		set.Difficulty = difficulty
		set.Completed = false
		sets = append(sets, set)
	}
	return sets, nil
}

// RunView is the aggregate view model consumed by every phase screen.
type RunView struct {
	Session         domain.Session    `json:"session"`
	UserID          string            `json:"userId"`
	CurrentSet      int               `json:"currentSet"`
	CurrentQuestion int               `json:"currentQuestion"` // global index
	Question        *domain.Question  `json:"question,omitempty"`
	Sets            []SetView         `json:"sets"`
	Responses       []domain.Response `json:"responses"`
	TotalQuestions  int               `json:"totalQuestions"`
	TotalAnswered   int               `json:"totalAnswered"`
	Completed       bool              `json:"completed"`
	SetRemaining    time.Duration     `json:"setRemaining,omitempty"`
}

// SetView summarizes one difficulty set for the view model.
type SetView struct {
	Difficulty domain.Difficulty `json:"difficulty"`
	Questions  int               `json:"questions"`
	Answered   int               `json:"answered"`
	Completed  bool              `json:"completed"`
}

// Run is one user's live passage through a session's question sets.
type Run struct {
	service *RunService
	session domain.Session
	userID  string

	mu              sync.Mutex
	sets            []domain.DifficultyGroup
	responses       map[int]string // global question index -> option letter
	currentSet      int
	currentQuestion int // global index
	settings        domain.QuizSettings
	resumedAnswered int // counts carried from a resumed record, floor until re-answered
	resumedCorrect  int
	startedAt       time.Time
	setDeadline     time.Time
	timer           *time.Timer
	completed       bool
}

// setBounds returns the [start, end) global index range of set i.
func (r *Run) setBounds(i int) (int, int) {
	start := 0
	for j := 0; j < i; j++ {
		start += len(r.sets[j].Questions)
	}
	return start, start + len(r.sets[i].Questions)
}

func (r *Run) questionAt(global int) *domain.Question {
	offset := global
	for i := range r.sets {
		if offset < len(r.sets[i].Questions) {
			return &r.sets[i].Questions[offset]
		}
		offset -= len(r.sets[i].Questions)
	}
	return nil
}

func (r *Run) totalQuestions() int {
	total := 0
	for i := range r.sets {
		total += len(r.sets[i].Questions)
	}
	return total
}

func (r *Run) correctCount() int {
	correct := 0
	for global, letter := range r.responses {
		if q := r.questionAt(global); q != nil && q.CorrectLetter() == letter {
			correct++
		}
	}
	return correct
}

func (r *Run) resumeFrom(record domain.ProgressRecord) {
	if record.CurrentSet >= 0 && record.CurrentSet < len(r.sets) {
		r.currentSet = record.CurrentSet
	}
	if record.CurrentQuestion >= 0 && record.CurrentQuestion < r.totalQuestions() {
		r.currentQuestion = record.CurrentQuestion
	}
	for i := 0; i < r.currentSet && i < len(r.sets); i++ {
		r.sets[i].Completed = true
	}
	// Individual responses are not persisted, only their counts. Keep the
	// recorded counts as a floor so an early post-resume upsert never shrinks
	// the stored progress below what the user had already achieved.
	r.resumedAnswered = record.TotalAnswered
	r.resumedCorrect = record.CorrectAnswers
	r.startedAt = r.service.clock().Add(-time.Duration(record.ElapsedSeconds) * time.Second)
}

// countsLocked reports answered/correct totals, never below the counts carried
// over from a resumed progress record.
func (r *Run) countsLocked() (answered, correct int) {
	answered = len(r.responses)
	correct = r.correctCount()
	if answered < r.resumedAnswered {
		answered = r.resumedAnswered
	}
	if correct < r.resumedCorrect {
		correct = r.resumedCorrect
	}
	return answered, correct
}

// View snapshots the aggregate view model.
func (r *Run) View() RunView {
	r.mu.Lock()
	defer r.mu.Unlock()

	sets := make([]SetView, len(r.sets))
	for i := range r.sets {
		start, end := r.setBounds(i)
		answered := 0
		for g := start; g < end; g++ {
			if _, ok := r.responses[g]; ok {
				answered++
			}
		}
		sets[i] = SetView{
			Difficulty: r.sets[i].Difficulty,
			Questions:  len(r.sets[i].Questions),
			Answered:   answered,
			Completed:  r.sets[i].Completed,
		}
	}

	responses := make([]domain.Response, 0, len(r.responses))
	for global, letter := range r.responses {
		responses = append(responses, domain.Response{QuestionIndex: global, Letter: letter})
	}
	sort.Slice(responses, func(i, j int) bool { return responses[i].QuestionIndex < responses[j].QuestionIndex })

	answered, _ := r.countsLocked()

	var remaining time.Duration
	if !r.setDeadline.IsZero() && !r.completed {
		if d := r.setDeadline.Sub(r.service.clock()); d > 0 {
			remaining = d
		}
	}

	return RunView{
		Session:         r.session,
		UserID:          r.userID,
		CurrentSet:      r.currentSet,
		CurrentQuestion: r.currentQuestion,
		Question:        r.questionAt(r.currentQuestion),
		Sets:            sets,
		Responses:       responses,
		TotalQuestions:  r.totalQuestions(),
		TotalAnswered:   answered,
		Completed:       r.completed,
		SetRemaining:    remaining,
	}
}

// SelectAnswer records a response for a question inside the current set.
func (r *Run) SelectAnswer(ctx context.Context, globalIndex int, letter string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed {
		return domain.ErrRunCompleted
	}
	start, end := r.setBounds(r.currentSet)
	if globalIndex < start || globalIndex >= end {
		return domain.ErrQuestionOutOfRange
	}
	q := r.questionAt(globalIndex)
	valid := false
	for _, opt := range q.Options {
		if opt.Letter == letter {
			valid = true
			break
		}
	}
	if !valid {
		return domain.ErrInvalidOption
	}
	r.responses[globalIndex] = letter
	return nil
}

// AdvanceQuestion commits the answer state and moves to the next question in
// the current set, stopping at the set boundary. Moving past an unanswered
// question requires the skip setting, same as NavigateTo.
func (r *Run) AdvanceQuestion(ctx context.Context) error {
	r.mu.Lock()
	if r.completed {
		r.mu.Unlock()
		return domain.ErrRunCompleted
	}
	_, end := r.setBounds(r.currentSet)
	if r.currentQuestion < end-1 {
		if _, answered := r.responses[r.currentQuestion]; !answered && !r.settings.AllowSkip {
			r.mu.Unlock()
			return domain.ErrSkipDisabled
		}
		r.currentQuestion++
	}
	update := r.progressUpdateLocked(false)
	r.mu.Unlock()

	return r.persist(ctx, update)
}

// NavigateTo jumps to an arbitrary question within the current set; permitted
// only when the skip setting is on. It never bypasses the submit-time
// completeness check.
func (r *Run) NavigateTo(globalIndex int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed {
		return domain.ErrRunCompleted
	}
	if !r.settings.AllowSkip {
		return domain.ErrSkipDisabled
	}
	start, end := r.setBounds(r.currentSet)
	if globalIndex < start || globalIndex >= end {
		return domain.ErrQuestionOutOfRange
	}
	r.currentQuestion = globalIndex
	return nil
}

// SubmitSet finishes the current set. Hard precondition: every question in
// the set has a recorded response.
func (r *Run) SubmitSet(ctx context.Context) error {
	return r.submitCurrentSet(ctx, false)
}

// AdvanceToNextSet moves past a submitted set and restarts the countdown.
func (r *Run) AdvanceToNextSet(ctx context.Context) error {
	r.mu.Lock()
	if r.completed {
		r.mu.Unlock()
		return domain.ErrRunCompleted
	}
	if !r.sets[r.currentSet].Completed {
		r.mu.Unlock()
		return domain.ErrSetIncomplete
	}
	if r.currentSet >= len(r.sets)-1 {
		r.mu.Unlock()
		return domain.ErrRunCompleted
	}
	r.currentSet++
	start, _ := r.setBounds(r.currentSet)
	r.currentQuestion = start
	update := r.progressUpdateLocked(false)
	r.mu.Unlock()

	r.startSetTimer()
	return r.persist(ctx, update)
}

// Restart discards persisted progress and rewinds the run to the beginning.
// The discard-and-restart path has no soft delete; the row is gone.
func (r *Run) Restart(ctx context.Context) error {
	if err := r.service.progress.Delete(ctx, r.session.ID, r.userID); err != nil &&
		!errors.Is(err, domain.ErrProgressNotFound) {
		return fmt.Errorf("reset progress: %w", err)
	}

	r.mu.Lock()
	r.responses = make(map[int]string)
	r.currentSet = 0
	r.currentQuestion = 0
	r.resumedAnswered = 0
	r.resumedCorrect = 0
	r.completed = false
	for i := range r.sets {
		r.sets[i].Completed = false
	}
	r.startedAt = r.service.clock()
	r.mu.Unlock()

	r.startSetTimer()
	return nil
}

// submitCurrentSet is the single submission path shared by manual submits and
// countdown expiry. Expiry waives only the completeness gate; unanswered
// questions simply count as wrong.
func (r *Run) submitCurrentSet(ctx context.Context, expired bool) error {
	r.mu.Lock()
	if r.completed {
		r.mu.Unlock()
		return domain.ErrRunCompleted
	}
	start, end := r.setBounds(r.currentSet)
	if !expired {
		for g := start; g < end; g++ {
			if _, ok := r.responses[g]; !ok {
				r.mu.Unlock()
				return domain.ErrSetIncomplete
			}
		}
	}
	r.sets[r.currentSet].Completed = true
	r.stopTimerLocked()

	last := r.currentSet == len(r.sets)-1
	if last {
		r.completed = true
	}
	update := r.progressUpdateLocked(last)
	_, correct := r.countsLocked()
	total := r.totalQuestions()
	r.mu.Unlock()

	if err := r.persist(ctx, update); err != nil {
		return err
	}
	if !last {
		return nil
	}

	entry := domain.LeaderboardEntry{
		SessionID:      r.session.ID,
		UserID:         r.userID,
		ScorePercent:   domain.ScorePercent(correct, total),
		CorrectAnswers: correct,
		TotalAnswered:  update.TotalAnswered,
		CompletedAt:    r.service.clock(),
	}
	if err := r.service.leaderboard.Put(ctx, entry); err != nil {
		return fmt.Errorf("persist leaderboard entry: %w", err)
	}
	if r.service.notifier != nil {
		r.service.notifier.PublishResultsReady(r.session.ID, r.userID)
	}
	return nil
}

func (r *Run) progressUpdateLocked(completed bool) domain.ProgressUpdate {
	answered, correct := r.countsLocked()
	return domain.ProgressUpdate{
		SessionID:       r.session.ID,
		UserID:          r.userID,
		CurrentQuestion: r.currentQuestion,
		CurrentSet:      r.currentSet,
		TotalAnswered:   answered,
		CorrectAnswers:  correct,
		ElapsedSeconds:  int(r.service.clock().Sub(r.startedAt).Seconds()),
		Completed:       completed,
	}
}

func (r *Run) persist(ctx context.Context, update domain.ProgressUpdate) error {
	if err := r.service.progress.Upsert(ctx, update); err != nil {
		return fmt.Errorf("persist progress: %w", err)
	}
	return nil
}

// startSetTimer arms the per-set countdown. Expiry funnels into the same
// submission path as a manual submit.
func (r *Run) startSetTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTimerLocked()
	if r.settings.SetTimeLimit <= 0 || r.completed {
		return
	}
	r.setDeadline = r.service.clock().Add(r.settings.SetTimeLimit)
	r.timer = time.AfterFunc(r.settings.SetTimeLimit, func() {
		if err := r.submitCurrentSet(context.Background(), true); err != nil &&
			!errors.Is(err, domain.ErrRunCompleted) {
			r.service.logger.Warn("auto-submit on countdown expiry failed",
				"session", r.session.ID, "user", r.userID, "error", err)
		}
	})
}

func (r *Run) stopTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTimerLocked()
}

func (r *Run) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.setDeadline = time.Time{}
}
