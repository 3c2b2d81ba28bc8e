package scraper

import "fmt"

// Scripts evaluated in the page. Side-effect scripts end in "true" so they always
// produce a decodable value.
const (
	scriptScrollHeight = `document.body ? document.body.scrollHeight : 0`
	scriptScrollTop    = `window.scrollTo(0, 0); true`
	scriptBodySample   = `(document.body ? document.body.innerText : "").slice(0, 500)`
	scriptOuterHTML    = `document.documentElement.outerHTML`

	scrollToPrefix = "window.scrollTo(0, "
)

func scriptScrollTo(y int) string {
	return fmt.Sprintf("%s%d); true", scrollToPrefix, y)
}

// Selectors. Strings starting with "//" are XPath, the rest CSS.
var (
	dismissSelectors = []string{
		"//button[contains(., 'Not now')]",
		"//button[contains(., 'not now')]",
		"//button[contains(., 'Skip')]",
		"//button[contains(., 'Dismiss')]",
		"//button[contains(., 'Later')]",
		"//button[@data-control-name='overlay.close_overlay']",
		"//button[contains(@class, 'artdeco-modal__dismiss')]",
		"//button[@aria-label='Dismiss']",
		"//button[contains(., 'Reject')]",
	}

	seeMoreSelectors = []string{
		"//button[contains(@class, 'inline-show-more')]",
		"//button[contains(translate(., 'SEE MORE', 'see more'), 'see more')]",
		"//button[contains(text(), '…more')]",
		"//button[contains(text(), '...more')]",
		"button.inline-show-more-text__button",
	}

	detailLinkSelector  = "//a[contains(@href, '/details/')]"
	showAllSelector     = "//button[contains(translate(., 'SHOW', 'show'), 'show all')]"
	mainSelector        = "main"
	usernameSelector    = "#username"
	passwordSelector    = "#password"
	submitLoginSelector = "button[type='submit']"
)
