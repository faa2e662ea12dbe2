package patterns

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Category is the result of classifying one remote-bot message.
type Category string

const (
	CategoryTaskOffer        Category = "task_offer"
	CategoryCompletionNotice Category = "completion_notice"
	CategorySkipPrompt       Category = "skip_prompt"
	CategoryConfirmPrompt    Category = "confirm_prompt"
	CategoryRateLimited      Category = "rate_limited"
	CategoryNoTasks          Category = "no_tasks"
	CategoryReferral         Category = "referral"
	CategoryUnrecognized     Category = "unrecognized"
)

// RefKind tells the join orchestrator which transport action a reference
// needs.
type RefKind string

const (
	KindPublicChannel RefKind = "public_channel"
	KindPrivateInvite RefKind = "private_invite"
	KindChannelList   RefKind = "channel_list"
	KindSubBot        RefKind = "sub_bot"
)

// ChannelReference is a normalized channel target extracted from a task
// offer. Value is the handle, invite hash, list hash or bot username with
// the leading @ / t.me prefix stripped; Link keeps the canonical
// https://t.me/... form for persistence.
type ChannelReference struct {
	Kind  RefKind
	Value string
	Link  string
}

// ClassifiedMessage is the per-message classification result.
type ClassifiedMessage struct {
	Category Category
	Reward   float64
	Channel  *ChannelReference
}

// Extractor applies a compiled rule table to raw message text. It is
// stateless and safe for concurrent use.
type Extractor struct {
	rules         Rules
	rewardRe      []*regexp.Regexp
	linkRe        []*regexp.Regexp
	excludedParts []string
}

func NewExtractor(rules Rules) *Extractor {
	e := &Extractor{rules: rules}
	for _, p := range rules.RewardPatterns {
		e.rewardRe = append(e.rewardRe, regexp.MustCompile(p))
	}
	for _, lp := range rules.LinkPatterns {
		e.linkRe = append(e.linkRe, regexp.MustCompile(lp.Pattern))
	}
	for _, part := range rules.ExcludedLinkParts {
		e.excludedParts = append(e.excludedParts, strings.ToLower(part))
	}
	return e
}

// Rules returns the table the extractor was built from.
func (e *Extractor) Rules() Rules { return e.rules }

// ExtractReward returns the first reward amount matched by the rule table's
// patterns. When nothing matches it returns the default reward rather than
// failing; the caller always records some amount.
func (e *Extractor) ExtractReward(text string) float64 {
	for _, re := range e.rewardRe {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		reward, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		return reward
	}
	return e.rules.DefaultReward
}

// ExtractChannelReference returns the first non-excluded channel link in
// text, normalized, or nil. Patterns run most specific first; a match that
// hits the exclusion list (self bot, referral/start links) is skipped and
// the next pattern is tried.
func (e *Extractor) ExtractChannelReference(text string) *ChannelReference {
	for i, re := range e.linkRe {
		loc := re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		raw := text[loc[0]:loc[1]]
		// The exclusion check runs against the whole URL token: the link
		// pattern itself stops before "?start=..." and would otherwise let
		// referral links through.
		if e.isExcludedLink(canonicalLink(urlToken(text, loc))) {
			continue
		}
		return e.buildReference(e.rules.LinkPatterns[i].Kind, canonicalLink(raw))
	}
	return nil
}

func urlToken(text string, loc []int) string {
	rest := text[loc[1]:]
	if j := strings.IndexFunc(rest, unicode.IsSpace); j >= 0 {
		rest = rest[:j]
	}
	return text[loc[0]:loc[1]] + rest
}

func canonicalLink(raw string) string {
	if strings.HasPrefix(raw, "@") {
		return "https://t.me/" + raw[1:]
	}
	if !strings.HasPrefix(raw, "http") {
		return "https://" + raw
	}
	return raw
}

func (e *Extractor) isExcludedLink(link string) bool {
	lower := strings.ToLower(link)
	for _, part := range e.excludedParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

func (e *Extractor) buildReference(kind RefKind, link string) *ChannelReference {
	ref := &ChannelReference{Kind: kind, Link: link}
	switch kind {
	case KindPrivateInvite:
		ref.Value = link[strings.LastIndex(link, "+")+1:]
	case KindChannelList:
		ref.Value = link[strings.LastIndex(link, "/addlist/")+len("/addlist/"):]
	default:
		handle := strings.TrimPrefix(link[strings.LastIndex(link, "/")+1:], "@")
		ref.Value = handle
		if IsBotHandle(handle) {
			ref.Kind = KindSubBot
		}
	}
	return ref
}

// IsBotHandle reports whether a handle names a bot rather than a channel;
// such references are routed to the sub-bot-start action.
func IsBotHandle(handle string) bool {
	return strings.HasSuffix(strings.ToLower(handle), "bot")
}

// Classify applies the rule table in its contractual precedence order:
// rate-limit, completion, referral, no-tasks, skip, task offer, confirm.
// The skip check runs before confirm detection because the two share
// surface keywords; a task offer requires indicator phrase, valid channel
// reference and reward label together.
func (e *Extractor) Classify(text string) Category {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, e.rules.RateLimitPhrases):
		return CategoryRateLimited
	case containsAny(lower, e.rules.CompletionPhrases):
		return CategoryCompletionNotice
	case containsAny(lower, e.rules.ReferralPhrases):
		return CategoryReferral
	case containsAny(lower, e.rules.NoTasksPhrases):
		return CategoryNoTasks
	case containsAny(lower, e.rules.SkipPhrases):
		return CategorySkipPrompt
	}
	if containsAny(lower, e.rules.TaskIndicators) &&
		e.ExtractChannelReference(text) != nil &&
		containsAny(lower, e.rules.RewardLabels) {
		return CategoryTaskOffer
	}
	if containsAny(lower, e.rules.ConfirmPhrases) {
		return CategoryConfirmPrompt
	}
	return CategoryUnrecognized
}

// Analyze classifies text and fills in the category-specific fields.
func (e *Extractor) Analyze(text string) ClassifiedMessage {
	cm := ClassifiedMessage{Category: e.Classify(text)}
	switch cm.Category {
	case CategoryTaskOffer:
		cm.Reward = e.ExtractReward(text)
		cm.Channel = e.ExtractChannelReference(text)
	case CategoryCompletionNotice:
		cm.Reward = e.ExtractReward(text)
	}
	return cm
}

func containsAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
