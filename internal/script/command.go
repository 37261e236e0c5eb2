package script

import (
	"fmt"
	"strconv"
	"strings"
)

// Command names recognized by the interpreter.
const (
	NameNavigate   = "navigate"
	NameInput      = "input"
	NameClick      = "click"
	NameScreenshot = "screenshot"
	NameLogContent = "log_content"
	NameLogRemark  = "log_remark"
)

// Option keys.
const (
	OptWaitTime = "wait_time"
	OptRemark   = "remark"
	OptFullPage = "full_page"
)

// Content kinds for log_content. Any other value names an attribute.
const (
	ContentText  = "text"
	ContentValue = "value"
)

// Command is the closed set of instruction kinds.
type Command interface {
	command()
}

// Target locates a page element.
type Target struct {
	SelectorType  string
	SelectorValue string
}

// Navigate loads a URL and optionally waits afterwards.
type Navigate struct {
	URL string
	// WaitSeconds is the raw wait_time option; see Wait.
	WaitSeconds string
}

// Input clears an element and types Text into it.
type Input struct {
	Target
	Text string
}

// Click activates an element.
type Click struct {
	Target
}

// Screenshot saves a capture under the screenshot directory.
type Screenshot struct {
	FileName string
	Remark   string
	FullPage bool
}

// LogContent logs an element's text, value or named attribute.
type LogContent struct {
	Target
	Kind   string
	Remark string
}

// LogRemark logs free text without touching the page.
type LogRemark struct {
	Text string
}

// Unknown is any command outside the recognized set.
type Unknown struct {
	Name string
}

func (Navigate) command()   {}
func (Input) command()      {}
func (Click) command()      {}
func (Screenshot) command() {}
func (LogContent) command() {}
func (LogRemark) command()  {}
func (Unknown) command()    {}

// Parse maps an instruction to its command variant.
func Parse(in Instruction) Command {
	target := Target{SelectorType: in.SelectorType, SelectorValue: in.SelectorValue}

	switch in.Command {
	case NameNavigate:
		return Navigate{URL: in.Value, WaitSeconds: in.Options.Get(OptWaitTime)}
	case NameInput:
		return Input{Target: target, Text: in.Value}
	case NameClick:
		return Click{Target: target}
	case NameScreenshot:
		return Screenshot{
			FileName: in.Value,
			Remark:   in.Options.Get(OptRemark),
			FullPage: strings.EqualFold(in.Options.Get(OptFullPage), "true"),
		}
	case NameLogContent:
		return LogContent{Target: target, Kind: in.Value, Remark: in.Options.Get(OptRemark)}
	case NameLogRemark:
		return LogRemark{Text: in.Value}
	default:
		return Unknown{Name: in.Command}
	}
}

// Wait returns the post-navigation wait in seconds.
// An absent option means no wait; a malformed one is an error.
func (n Navigate) Wait() (int, error) {
	if n.WaitSeconds == "" {
		return 0, nil
	}
	secs, err := strconv.Atoi(n.WaitSeconds)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", OptWaitTime, n.WaitSeconds, err)
	}
	return secs, nil
}
