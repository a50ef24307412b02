package locator

import "regexp"

// Row selectors for the list views Gmail renders: modern list items, the
// classic inbox table and conversation view.
const (
	SelectorListItem     = `div[role="main"] div[role="list"] div[role="listitem"]`
	SelectorTableRow     = `table.F tr.zA`
	SelectorConversation = `div.adn.ads`

	SelectorRows = SelectorListItem + ", " + SelectorTableRow + ", " + SelectorConversation

	// SelectorRowAncestor is what a checked checkbox is walked up to.
	SelectorRowAncestor = `div[role="listitem"], tr.zA`

	SelectorCheckedBox = `div[role="checkbox"][aria-checked="true"]`

	SelectorOpenBody     = `.a3s.aiL`
	SelectorOpenSubject  = `h2.hP`
	SelectorPermThreadID = `h2[data-thread-perm-id]`

	SelectorMailboxLinks = `a[href*="#inbox/"], a[href*="#all/"], a[href*="#sent/"], a[href*="#trash/"], a[href*="#spam/"]`
	SelectorNestedIDs    = `[data-legacy-thread-id], [data-thread-id]`

	// SelectorRefreshButton is clicked after labels change so Gmail re-renders.
	SelectorRefreshButton = `button[aria-label="Refresh"]`
	// SelectorRefreshIcon identifies refresh buttons that only carry the label
	// on their icon.
	SelectorRefreshIcon = `div[aria-label="Refresh"]`
)

const (
	AttrThreadPermID   = "data-thread-perm-id"
	AttrThreadID       = "data-thread-id"
	AttrLegacyThreadID = "data-legacy-thread-id"
)

// SyntheticPrefix marks identifiers invented for rows whose real thread id
// could not be found. They are stable only within one extraction.
const SyntheticPrefix = "email_"

// minLinkIDLength filters short trailing path segments (e.g. "inbox") out of
// the generic anchor strategy.
const minLinkIDLength = 10

var (
	subjectSelectors = []string{".y6", ".bog", ".bqe", ".y2", "span[data-thread-id]", "span.bA4", "span.bqf"}
	snippetSelectors = []string{".y2", ".yX", ".xY", ".xW", ".a4W", "span.bx4"}

	mailboxPattern  = regexp.MustCompile(`[/#](?:inbox|all|sent|trash|spam)/([a-zA-Z0-9]+)`)
	trailingSegment = regexp.MustCompile(`/([a-zA-Z0-9]+)$`)
)
