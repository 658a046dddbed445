package model

// ForwardRequest asks to replicate a message into each target. A target is
// either an existing conversation id or a contact id, in which case the
// direct conversation with the forwarder is resolved or created first.
type ForwardRequest struct {
	Targets []string `json:"targets"`
	Comment string   `json:"comment,omitempty"`
}

// ForwardResult reports the outcome for one fan-out target. Targets are
// independent: a failed target never aborts the others, and the overall
// operation is not atomic across targets.
type ForwardResult struct {
	Target           string `json:"target"`
	ConversationID   string `json:"conversation_id,omitempty"`
	MessageID        string `json:"message_id,omitempty"`
	CommentMessageID string `json:"comment_message_id,omitempty"`
	OK               bool   `json:"ok"`
	Error            string `json:"error,omitempty"`
}

// ForwardResponse aggregates per-target outcomes in target order.
type ForwardResponse struct {
	Results []ForwardResult `json:"results"`
}
