package domain

import (
	"math"
	"time"
)

// SessionStatus is the lifecycle state of a quiz session.
type SessionStatus string

const (
	StatusScheduled SessionStatus = "scheduled"
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
)

// Session identifies one quiz instance within a study group.
type Session struct {
	ID             string            `json:"id"`
	GroupID        string            `json:"groupId"`
	CreatorID      string            `json:"creatorId"`
	Title          string            `json:"title"`
	Status         SessionStatus     `json:"status"`
	ScheduledAt    *time.Time        `json:"scheduledAt,omitempty"`
	QuestionTokens map[string]string `json:"questionTokens,omitempty"` // difficulty -> share token
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// Difficulty tags one question set tier.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties is the canonical set order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// Option is one selectable answer, addressed by letter ("A", "B", ...).
type Option struct {
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID           string     `json:"id"`
	Prompt       string     `json:"prompt"`
	Options      []Option   `json:"options"`
	CorrectIndex int        `json:"correctIndex"`
	Difficulty   Difficulty `json:"difficulty"`
	Explanation  string     `json:"explanation,omitempty"`
}

// Valid reports whether the correct-option marker references an existing option.
func (q Question) Valid() bool {
	return q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Options)
}

// CorrectLetter returns the letter of the correct option, or "" when invalid.
func (q Question) CorrectLetter() string {
	if !q.Valid() {
		return ""
	}
	return q.Options[q.CorrectIndex].Letter
}

// DifficultyGroup is one ordered question set produced by the generation step.
// The quiz flow treats it as read-only apart from the completed flag.
type DifficultyGroup struct {
	Difficulty Difficulty `json:"difficulty"`
	Questions  []Question `json:"questions"`
	Completed  bool       `json:"completed"`
}

// Response pairs a global question index with the selected option letter.
// Held in memory for the active run; durable only once progress is upserted.
type Response struct {
	QuestionIndex int    `json:"questionIndex"`
	Letter        string `json:"letter"`
}

// ProgressRecord is the persisted advancement of one user through one session,
// keyed by (session, user). It is the sole authority for attempted/completed checks.
type ProgressRecord struct {
	SessionID       string    `json:"sessionId"`
	UserID          string    `json:"userId"`
	CurrentQuestion int       `json:"currentQuestion"`
	CurrentSet      int       `json:"currentSet"`
	TotalAnswered   int       `json:"totalAnswered"`
	CorrectAnswers  int       `json:"correctAnswers"`
	ElapsedSeconds  int       `json:"elapsedSeconds"`
	Confidence      string    `json:"confidence,omitempty"`
	Completed       bool      `json:"completed"`
	LastActivity    time.Time `json:"lastActivity"`
}

// ProgressUpdate is a full-row upsert payload; conflict policy is replace-on-key.
type ProgressUpdate struct {
	SessionID       string
	UserID          string
	CurrentQuestion int
	CurrentSet      int
	TotalAnswered   int
	CorrectAnswers  int
	ElapsedSeconds  int
	Confidence      string
	Completed       bool
}

// ExistingResult summarizes a prior attempt for the restart-or-resume prompt.
type ExistingResult struct {
	HasResults     bool `json:"hasResults"`
	Completed      bool `json:"completed"`
	ScorePercent   int  `json:"scorePercent"`
	CorrectAnswers int  `json:"correctAnswers"`
	TotalAnswered  int  `json:"totalAnswered"`
}

// LeaderboardEntry is one user's final result within a session.
type LeaderboardEntry struct {
	SessionID      string    `json:"sessionId"`
	UserID         string    `json:"userId"`
	ScorePercent   int       `json:"scorePercent"`
	CorrectAnswers int       `json:"correctAnswers"`
	TotalAnswered  int       `json:"totalAnswered"`
	CompletedAt    time.Time `json:"completedAt"`
}

// Participant is the ephemeral presence record of one connected client.
type Participant struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Manager     bool      `json:"manager"`
	Online      bool      `json:"online"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// MemberRole is a study-group membership role.
type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

// GroupMember is one row of study_group_members.
type GroupMember struct {
	GroupID  string     `json:"groupId"`
	UserID   string     `json:"userId"`
	Role     MemberRole `json:"role"`
	JoinedAt time.Time  `json:"joinedAt"`
}

// PreparationStep is the manager's current setup stage.
type PreparationStep string

const (
	StepPresetSelection    PreparationStep = "preset-selection"
	StepQuestionGeneration PreparationStep = "question-generation"
	StepReadyToStart       PreparationStep = "ready-to-start"
)

// PreparationState is the broadcast-only description of setup progress.
// Not persisted; reconstructed per connection from the latest broadcast.
type PreparationState struct {
	Step           PreparationStep    `json:"step"`
	Preset         string             `json:"preset,omitempty"`
	Distribution   map[Difficulty]int `json:"distribution,omitempty"`
	Generating     bool               `json:"generating"`
	QuestionsReady bool               `json:"questionsReady"`
	UpdatedBy      string             `json:"updatedBy"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// QuizSettings are the owner-configured run options.
type QuizSettings struct {
	AllowSkip    bool          `json:"allowSkip"`
	SetTimeLimit time.Duration `json:"setTimeLimit"` // zero disables the per-set countdown
}

// ScorePercent derives the rounded percentage shown for a result.
func ScorePercent(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}
