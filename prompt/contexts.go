package prompt

import (
	"sync"
	"time"

	"github.com/dlclark/regexp2"

	"abbas/config"
)

// AdditionalContext is a system note injected before any non-assistant
// message matching one of its trigger words.
type AdditionalContext struct {
	TriggerWords []string `json:"trigger_words" yaml:"trigger_words"`
	Context      string   `json:"context" yaml:"context"`
}

const matchTimeout = 100 * time.Millisecond

// triggerCache maps a pattern to its compiled form, or nil when invalid.
var triggerCache sync.Map

func compileTrigger(pattern string) *regexp2.Regexp {
	if cached, ok := triggerCache.Load(pattern); ok {
		re, _ := cached.(*regexp2.Regexp)
		return re
	}

	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase)
	if err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Prompt] Skipping invalid trigger %q: %v", pattern, err)
		}
		triggerCache.Store(pattern, (*regexp2.Regexp)(nil))
		return nil
	}
	re.MatchTimeout = matchTimeout
	triggerCache.Store(pattern, re)
	return re
}

// Matches reports whether any trigger word is found in text. Triggers are
// regular expressions matched case-insensitively anywhere in text.
func (c AdditionalContext) Matches(text string) bool {
	for _, trigger := range c.TriggerWords {
		re := compileTrigger(trigger)
		if re == nil {
			continue
		}
		ok, err := re.MatchString(text)
		if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Prompt] Trigger %q failed: %v", trigger, err)
			}
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
