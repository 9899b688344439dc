package domain

// State is a player's position in the progression machine.
type State string

const (
	// StateInit is assigned on registration; the player has not seen a question yet.
	StateInit State = "INIT"
	// StatePlay means the player is working through the question ladder.
	StatePlay State = "PLAY"
	// StateRepeat means the last answer was wrong but retries remain.
	StateRepeat State = "REPEAT"
	// StateWin and StateLose are the terminal game outcomes.
	StateWin  State = "WIN"
	StateLose State = "LOSE"
	// StateContact is entered after a terminal outcome when no contact info
	// is on file; StateContactRequest means the prompt was shown and the next
	// free-text message is captured as contact info.
	StateContact        State = "CONTACT"
	StateContactRequest State = "CONTACT_REQUEST"
)

// Terminal reports whether the state is a final game outcome.
func (s State) Terminal() bool {
	return s == StateWin || s == StateLose
}
