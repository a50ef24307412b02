// Package locator finds Gmail thread identifiers and message text in a
// rendered Gmail page.
//
// Gmail's markup changes between views and releases, so every lookup is an
// ordered list of strategies. The first strategy that yields a non-empty value
// wins. A miss is reported as "not found", never as an error: the caller
// simply cannot act on the current page state.
//
// Pages come from internal/browser as raw HTML plus the tab URL and are parsed
// with goquery.
package locator
