// Package labeler ties the page, the classifier and Gmail together.
//
// Service reads the Gmail tab through a browser.PageSource, locates emails
// with the locator, asks the classifier for predictions or trains it, resolves
// label names to ids and adds them through the Gmail API. After labels change
// it schedules a best-effort UI refresh; nothing depends on that refresh
// succeeding.
//
// Batch operations run through the batch coordinator, so chunking, pauses and
// per-item progress behave the same for visible-email classification and for
// batch training.
package labeler
