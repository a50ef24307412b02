package gmail

// Label is a Gmail label as the labeler sees it.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Visibility settings for labels created by the resolver, so they show up
// in both the label list and the message list.
const (
	LabelListVisibility   = "labelShow"
	MessageListVisibility = "show"
	LabelTypeUser         = "user"
)

// userID is the Gmail API alias for the authenticated user.
const userID = "me"
