package locator

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// RefreshButton finds Gmail's refresh button: the aria-labelled button, or
// else the first button whose markup mentions "refresh" or that wraps the
// refresh icon.
func RefreshButton(p *Page) (*goquery.Selection, bool) {
	if btn := p.Doc.Find(SelectorRefreshButton).First(); btn.Length() > 0 {
		return btn, true
	}

	btn := p.Doc.Find("button").FilterFunction(func(_ int, b *goquery.Selection) bool {
		inner, _ := b.Html()
		return strings.Contains(inner, "refresh") || b.Find(SelectorRefreshIcon).Length() > 0
	}).First()
	return btn, btn.Length() > 0
}

// RefreshScript performs the same lookup as RefreshButton in the live page,
// clicks the match and evaluates to whether one was found.
const RefreshScript = `(() => {
  let btn = document.querySelector('` + SelectorRefreshButton + `');
  if (!btn) {
    btn = Array.from(document.querySelectorAll('button')).find(b =>
      b.innerHTML.includes('refresh') || b.querySelector('` + SelectorRefreshIcon + `'));
  }
  if (!btn) {
    return false;
  }
  btn.click();
  return true;
})()`
