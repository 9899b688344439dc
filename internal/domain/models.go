package domain

import "time"

// Question is a single quiz question inside a stage. Weight is the strict
// ordering key within the stage; the catalog rejects duplicate weights at
// load time.
type Question struct {
	ID       int64     `json:"id"`
	Stage    int64     `json:"stage"`
	Text     string    `json:"text"`
	Weight   int       `json:"weight"`
	Variants []Variant `json:"variants"`
}

// Variant represents a possible answer for a question.
type Variant struct {
	QuestionID int64  `json:"questionId"`
	ID         string `json:"id"`
	Text       string `json:"text"`
	Correct    bool   `json:"correct"`
}

// CorrectVariants returns the variants flagged as correct.
func (q Question) CorrectVariants() []Variant {
	var out []Variant
	for _, v := range q.Variants {
		if v.Correct {
			out = append(out, v)
		}
	}
	return out
}

// Variant looks up a variant by ID.
func (q Question) Variant(id string) (Variant, bool) {
	for _, v := range q.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// Player tracks one participant's identity and progression state.
type Player struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ChatID       int64     `json:"chatId"`
	State        State     `json:"state"`
	Contact      string    `json:"contact"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// HasContact reports whether the player already supplied contact info.
func (p Player) HasContact() bool {
	return p.Contact != ""
}

// Answer is the single persisted record for a (player, question) pair.
// Retries update it in place; Tries never decreases.
type Answer struct {
	PlayerID   string    `json:"playerId"`
	QuestionID int64     `json:"questionId"`
	VariantID  string    `json:"variantId"`
	Tries      int       `json:"tries"`
	Passed     bool      `json:"passed"`
	AnsweredAt time.Time `json:"answeredAt"`
}

// HintUsage counts how often a player used a hint kind, across the whole game.
type HintUsage struct {
	PlayerID string `json:"playerId"`
	Kind     string `json:"kind"`
	Count    int    `json:"count"`
}

// RankingRow is one leaderboard line before rank assignment: the raw
// comparator inputs for a single player.
type RankingRow struct {
	PlayerID   string    `json:"playerId"`
	Name       string    `json:"name"`
	ChatID     int64     `json:"chatId"`
	Passed     int       `json:"passed"`
	SumTries   int       `json:"sumTries"`
	HintCount  int       `json:"hintCount"`
	LastPassed time.Time `json:"lastPassed"`
	Rank       int       `json:"rank"`
}

// Leaderboard is the ordered, dense-ranked scoreboard for a stage.
type Leaderboard struct {
	Stage         int64        `json:"stage"`
	Rows          []RankingRow `json:"rows"`
	QuestionCount int          `json:"questionCount"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Prompt tells the transport collaborator what to present to the player.
// Formatting and delivery live outside the core.
type Prompt string

const (
	PromptGreeting Prompt = "greeting"
	PromptRetry    Prompt = "retry"
	PromptQuestion Prompt = "question"
	PromptWin      Prompt = "win"
	PromptLose     Prompt = "lose"
	PromptContact  Prompt = "contact"
)

// AnswerOutcome summarizes one submission.
type AnswerOutcome string

const (
	AnswerPassed          AnswerOutcome = "passed"
	AnswerRetry           AnswerOutcome = "retry"
	AnswerLost            AnswerOutcome = "lost"
	AnswerAlreadyRecorded AnswerOutcome = "alreadyRecorded"
)

// HintOutcome is the result of a hint request.
type HintOutcome struct {
	Granted bool        `json:"granted"`
	Kind    string      `json:"kind"`
	Payload HintPayload `json:"payload"`
}

// HintPayload carries kind-specific data: a reduced variant set for the
// fifty-fifty hint, or the answer distribution for the stats hint.
type HintPayload struct {
	Variants     []Variant      `json:"variants,omitempty"`
	Distribution map[string]int `json:"distribution,omitempty"`
	TotalAnswers int            `json:"totalAnswers,omitempty"`
}
