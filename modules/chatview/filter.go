package chatview

import (
	"regexp"
	"strings"

	"github.com/example/chatroom-sync-demo/domain/chat"
)

// FilterMessages returns the text messages whose content matches query as a
// case-insensitive regular expression. A blank query returns msgs as is.
// A query that does not compile is matched literally. Image messages never
// match.
func FilterMessages(msgs []chat.Message, query string) []chat.Message {
	re := compileFilter(query)
	if re == nil {
		return msgs
	}

	out := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		text, ok := m.Text()
		if !ok {
			continue
		}
		if re.MatchString(text) {
			out = append(out, m)
		}
	}
	return out
}

// compileFilter reports nil for a blank query. Surrounding whitespace only
// decides whether the filter is active; the pattern keeps it.
func compileFilter(query string) *regexp.Regexp {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	re, err := regexp.Compile("(?i)" + query)
	if err != nil {
		re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(query))
	}
	return re
}
