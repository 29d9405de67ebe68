package fetch

import "strings"

// challengeSignatures are lowercase substrings that identify anti-bot
// interstitials. A page containing any of them is not real content, whatever
// the HTTP status says.
var challengeSignatures = []string{
	"<title>challenge",
	"just a moment",
	"checking your browser",
	"verify you are human",
}

// minContentLength is the shortest HTML body accepted as a real search page.
// Challenge stubs and error pages come in well under this.
const minContentLength = 1000

// DetectChallenge returns the matching signature if html looks like an
// anti-bot interstitial.
func DetectChallenge(html string) (string, bool) {
	lower := strings.ToLower(html)
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) {
			return sig, true
		}
	}
	return "", false
}
