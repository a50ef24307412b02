package google

import gmail "google.golang.org/api/gmail/v1"

// DefaultOAuthScopes are the scopes needed to read labels, create labels and
// add labels to threads.
var DefaultOAuthScopes = []string{
	gmail.GmailLabelsScope,
	gmail.GmailModifyScope,
}
