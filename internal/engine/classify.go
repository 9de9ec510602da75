package engine

import "strings"

// Outcome is the classifier's verdict over visible page text. Both flags
// false means the flow should continue.
type Outcome struct {
	Success bool
	Failure bool
}

var successPhrases = []string{
	"you have been unsubscribed",
	"you've been unsubscribed",
	"successfully unsubscribed",
	"unsubscribed successfully",
	"unsubscribe successful",
	"you are now unsubscribed",
	"you are unsubscribed",
	"has been unsubscribed",
	"removed from our mailing list",
	"removed from this list",
	"you will no longer receive",
	"no longer receive emails",
	"opt-out successful",
	"opted out successfully",
	"subscription cancelled",
	"subscription canceled",
	"preferences have been updated",
	"preferences updated",
	"your preferences have been saved",
}

var failurePhrases = []string{
	"unable to unsubscribe",
	"could not unsubscribe",
	"unsubscribe failed",
	"failed to unsubscribe",
	"error processing your request",
	"an error occurred",
	"something went wrong",
	"please try again",
	"request could not be completed",
	"invalid unsubscribe link",
	"link has expired",
}

// Classify scans visible body text for the fixed success/failure phrase
// sets, case-insensitively. A success match wins over a simultaneous failure
// match: a later confirmation supersedes an earlier warning.
func Classify(pageText string) Outcome {
	text := strings.ToLower(pageText)

	var out Outcome
	for _, p := range successPhrases {
		if strings.Contains(text, p) {
			out.Success = true
			break
		}
	}
	if out.Success {
		return out
	}
	for _, p := range failurePhrases {
		if strings.Contains(text, p) {
			out.Failure = true
			break
		}
	}
	return out
}
