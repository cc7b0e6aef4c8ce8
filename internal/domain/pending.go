package domain

import "time"

// ConfirmationSentinel is the exact phrase the assistant appends when it
// proposes a write action. The user's next reply decides whether the
// stored action runs.
const ConfirmationSentinel = "Shall I proceed? [y/n]"

// PendingAction is a write tool call that has been proposed to the user
// and is waiting on confirmation. It is carried on the session rather
// than re-derived from transcript text.
type PendingAction struct {
	Call      ToolCall  `json:"call"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
}
