// Package browser supplies snapshots of the Gmail tab to the locator and
// triggers the UI refresh after labels change.
//
// ChromeSource attaches to a running Chrome over the DevTools protocol and
// works on the first tab showing Gmail. FileSource reads a saved HTML
// snapshot, which is how the CLI runs without a browser.
package browser
