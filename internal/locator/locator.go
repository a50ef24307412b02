package locator

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/teemow/inboxlabeler/internal/logging"
)

// DefaultMaxRows caps how many list rows one extraction returns.
const DefaultMaxRows = 50

// threadStrategy resolves the thread id of the open email.
type threadStrategy func(p *Page) string

// rowStrategy resolves the thread id of a single list row.
type rowStrategy func(p *Page, row *goquery.Selection) string

// openThreadStrategies are tried in order for the open email.
var openThreadStrategies = []threadStrategy{
	threadFromURL,
	threadFromPermAttr,
}

// rowStrategies are tried in order for each list row. The positional
// fallback is applied by the caller because it needs the row index.
var rowStrategies = []rowStrategy{
	rowFromOwnAttr,
	rowFromMailboxLink,
	rowFromLongLink,
	rowFromNestedAttr,
}

// Locator extracts emails from Gmail pages.
type Locator struct {
	maxRows int
	logger  *slog.Logger
}

// New returns a Locator returning at most maxRows list rows. A non-positive
// maxRows uses DefaultMaxRows.
func New(maxRows int, logger *slog.Logger) *Locator {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Locator{
		maxRows: maxRows,
		logger:  logging.WithComponent(logger, "locator"),
	}
}

// OpenThreadID returns the id of the email currently open in the tab.
func (l *Locator) OpenThreadID(p *Page) (string, bool) {
	for _, s := range openThreadStrategies {
		if id := s(p); id != "" {
			return id, true
		}
	}
	l.logger.Debug("could not find thread ID in URL or DOM", "url", p.URL)
	return "", false
}

// OpenEmail returns the open email. It reports false when no thread id can be
// found; missing subject or body elements yield empty strings.
func (l *Locator) OpenEmail(p *Page) (*EmailRef, bool) {
	id, ok := l.OpenThreadID(p)
	if !ok {
		return nil, false
	}

	ref := &EmailRef{ThreadID: id}
	if body := p.Doc.Find(SelectorOpenBody).First(); body.Length() > 0 {
		ref.Body = strings.TrimSpace(body.Text())
	}
	subject := p.Doc.Find(SelectorOpenSubject).First()
	if subject.Length() == 0 {
		subject = p.Doc.Find(SelectorPermThreadID).First()
	}
	ref.Subject = strings.TrimSpace(subject.Text())

	l.logger.Debug("found open email", logging.Thread(id))
	return ref, true
}

// VisibleEmails returns up to maxRows list rows in document order. With
// selectedOnly set, only rows the user has selected are returned.
func (l *Locator) VisibleEmails(p *Page, selectedOnly bool) []VisibleEmail {
	rows := p.Doc.Find(SelectorRows)
	if selectedOnly {
		rows = selectedRows(p, rows)
	}

	n := rows.Length()
	if n > l.maxRows {
		n = l.maxRows
	}

	emails := make([]VisibleEmail, 0, n)
	rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
		if i >= n {
			return false
		}
		emails = append(emails, VisibleEmail{
			ThreadID: rowThreadID(p, row, i),
			Content:  rowContent(row),
		})
		return true
	})

	l.logger.Debug("extracted visible emails",
		"rows", rows.Length(),
		"returned", len(emails),
		"selected_only", selectedOnly)
	return emails
}

// selectedRows narrows rows to the user's selection. Checked checkboxes are
// authoritative when present; otherwise row-level selection markers are used.
func selectedRows(p *Page, rows *goquery.Selection) *goquery.Selection {
	if checked := p.Doc.Find(SelectorCheckedBox); checked.Length() > 0 {
		// Checked boxes outside any row select nothing rather than every row.
		return checked.Closest(SelectorRowAncestor)
	}
	return rows.FilterFunction(func(_ int, row *goquery.Selection) bool {
		return isSelectedRow(row)
	})
}

func isSelectedRow(row *goquery.Selection) bool {
	if v, _ := row.Attr("aria-selected"); v == "true" {
		return true
	}
	if row.HasClass("x7") || row.HasClass("aps") {
		return true
	}
	if row.Find(`input[type="checkbox"][checked]`).Length() > 0 {
		return true
	}
	if _, ok := row.Attr("selected"); ok {
		return true
	}
	v, _ := row.Attr("data-selected")
	return v == "true"
}

func rowThreadID(p *Page, row *goquery.Selection, index int) string {
	for _, s := range rowStrategies {
		if id := s(p, row); id != "" {
			return id
		}
	}
	return SyntheticPrefix + strconv.Itoa(index)
}

func rowContent(row *goquery.Selection) string {
	subject := firstText(row, subjectSelectors)
	snippet := firstText(row, snippetSelectors)
	if subject == "" && snippet == "" {
		return strings.TrimSpace(row.Text())
	}
	return subject + "\n" + snippet
}

// firstText returns the trimmed text of the first selector that matches any
// element, even if that element is empty.
func firstText(row *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if el := row.Find(sel).First(); el.Length() > 0 {
			return strings.TrimSpace(el.Text())
		}
	}
	return ""
}

func threadFromURL(p *Page) string {
	return matchMailbox(p.URL)
}

func threadFromPermAttr(p *Page) string {
	v, _ := p.Doc.Find(SelectorPermThreadID).First().Attr(AttrThreadPermID)
	return v
}

func rowFromOwnAttr(_ *Page, row *goquery.Selection) string {
	if v, _ := row.Attr(AttrThreadPermID); v != "" {
		return v
	}
	v, _ := row.Attr(AttrThreadID)
	return v
}

func rowFromMailboxLink(p *Page, row *goquery.Selection) string {
	var id string
	row.Find(SelectorMailboxLinks).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		id = matchMailbox(p.resolve(href))
		return id == ""
	})
	return id
}

func rowFromLongLink(p *Page, row *goquery.Selection) string {
	var id string
	row.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if m := trailingSegment.FindStringSubmatch(p.resolve(href)); m != nil && len(m[1]) > minLinkIDLength {
			id = m[1]
		}
		return id == ""
	})
	return id
}

func rowFromNestedAttr(_ *Page, row *goquery.Selection) string {
	var id string
	row.Find(SelectorNestedIDs).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if v, _ := el.Attr(AttrLegacyThreadID); v != "" {
			id = v
		} else {
			id, _ = el.Attr(AttrThreadID)
		}
		return id == ""
	})
	return id
}

func matchMailbox(s string) string {
	if m := mailboxPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}
