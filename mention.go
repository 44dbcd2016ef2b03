package askscot

import (
	"regexp"
	"strings"
)

// userMentionPattern matches slack's user mention markup (i.e. <@U123ABC>)
var userMentionPattern = regexp.MustCompile(`<@[A-Z0-9]+>`)

// ExtractQuestion removes all user mention tokens from text and trims the result. Removal
// is repeated until no token is left since removing one can join the halves of another
// (i.e. <@<@U1>U2>)
func ExtractQuestion(text string) string {
	for userMentionPattern.MatchString(text) {
		text = userMentionPattern.ReplaceAllString(text, "")
	}

	return strings.TrimSpace(text)
}
