package chrome

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/koki-mus/csvscenario/internal/browser"
)

// query is a chromedp selector and the strategy that interprets it.
type query struct {
	sel  string
	by   chromedp.QueryOption
	kind string // "css" or "xpath", for tests and diagnostics
}

// queryFor translates a selector kind into a CSS or XPath query.
func queryFor(kind browser.SelectorKind, value string) (query, error) {
	css := func(s string) query { return query{sel: s, by: chromedp.ByQuery, kind: "css"} }
	xpath := func(s string) query { return query{sel: s, by: chromedp.BySearch, kind: "xpath"} }

	switch kind {
	case browser.ByID:
		return css(`[id="` + cssString(value) + `"]`), nil
	case browser.ByName:
		return css(`[name="` + cssString(value) + `"]`), nil
	case browser.ByClassName:
		return css(`[class~="` + cssString(value) + `"]`), nil
	case browser.ByCSSSelector, browser.ByTagName:
		return css(value), nil
	case browser.ByXPath:
		return xpath(value), nil
	case browser.ByLinkText:
		return xpath("//a[normalize-space(.)=" + xpathLiteral(value) + "]"), nil
	case browser.ByPartialLinkText:
		return xpath("//a[contains(normalize-space(.), " + xpathLiteral(value) + ")]"), nil
	default:
		return query{}, fmt.Errorf("invalid selector type: %q", kind)
	}
}

// cssString escapes s for use inside a double-quoted CSS string.
func cssString(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// xpathLiteral quotes s as an XPath 1.0 string literal. XPath has no
// escapes, so a value holding both quote kinds is built with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, 2*len(parts)-1)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
