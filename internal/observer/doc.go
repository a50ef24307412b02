// Package observer watches the Gmail page for rows it has not seen before.
//
// A producer polls the page source on an interval and pushes unseen rows onto
// a bounded queue; a single consumer drains the queue and hands the rows to a
// Handler, for example one that classifies them. Rows are remembered in a
// bounded LRU cache, so an email that scrolls back into view after being
// evicted is reported again.
package observer
