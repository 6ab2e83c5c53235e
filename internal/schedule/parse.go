package schedule

import (
	"regexp"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var emailPattern = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)

// Parser resolves free-text time expressions like "tomorrow at 2pm" into
// concrete windows in a fixed timezone.
type Parser struct {
	w   *when.Parser
	loc *time.Location
}

func NewParser(loc *time.Location) *Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{w: w, loc: loc}
}

// WhenToRange parses the first time expression in text into a window of the
// given duration. The ok flag is false when no expression was found.
func (p *Parser) WhenToRange(text string, now time.Time, duration time.Duration) (time.Time, time.Time, bool) {
	result, err := p.w.Parse(text, now.In(p.loc))
	if err != nil || result == nil {
		return time.Time{}, time.Time{}, false
	}
	start := result.Time.In(p.loc)
	return start, start.Add(duration), true
}

// ExtractEmail returns the first email address embedded in text, or "".
func ExtractEmail(text string) string {
	return strings.TrimSpace(emailPattern.FindString(text))
}
