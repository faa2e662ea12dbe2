package patterns

// Rules is the complete phrase and pattern table driving classification.
// Every literal the remote bot's templates expose lives here, so a wording
// change is a table edit, not a control-flow edit. Phrases are stored
// lowercase and matched against lowercased message text.
type Rules struct {
	Version string

	// SelfBot is the remote task bot's username; links pointing back at it
	// are never treated as channel tasks.
	SelfBot string

	RateLimitPhrases  []string
	CompletionPhrases []string
	ReferralPhrases   []string
	NoTasksPhrases    []string
	SkipPhrases       []string

	// A task offer requires all three: an indicator phrase, a valid channel
	// reference and a reward label.
	TaskIndicators []string
	RewardLabels   []string

	ConfirmPhrases []string

	// RewardPatterns are tried in order; group 1 is the amount.
	RewardPatterns []string
	DefaultReward  float64

	// LinkPatterns are tried in order, most specific first.
	LinkPatterns []LinkPattern

	// ExcludedLinkParts knock out referral/start links (SelfBot is added by
	// DefaultRules).
	ExcludedLinkParts []string

	// Inline-button label keywords and the plain-text commands sent when no
	// matching button is found.
	ConfirmButtonWords []string
	SkipButtonWords    []string
	ConfirmFallbacks   []string
	SkipFallbacks      []string
}

// LinkPattern pairs a link regexp with the reference kind it produces.
type LinkPattern struct {
	Pattern string
	Kind    RefKind
}

// DefaultRules returns the rule table for @StarsovGamesBot's current
// templates.
func DefaultRules() Rules {
	selfBot := "StarsovGamesBot"
	return Rules{
		Version: "1",
		SelfBot: selfBot,
		RateLimitPhrases: []string{
			"вы делаете слишком много запросов",
			"too many requests",
		},
		CompletionPhrases: []string{
			"✅ задание выполнено",
			"задание выполнено",
			"получено",
			"task completed",
			"completed",
		},
		ReferralPhrases: []string{
			"приглашенного друга",
			"реферальная ссылка",
			"приглашайте по этой ссылке",
			"приглашено вами:",
			"starsovgamesbot?start=",
		},
		NoTasksPhrases: []string{
			"задания закончились",
			"no tasks available",
		},
		SkipPhrases: []string{
			"💡 получайте",
			"нажмите «подписаться», дождитесь",
			"⏩",
			"skip",
			"пропустить",
		},
		TaskIndicators: []string{
			"подпишитесь на канал",
			"🔴 subscribe to",
			"нажмите «подтвердить»",
		},
		RewardLabels: []string{
			"вознаграждение:",
			"reward:",
		},
		ConfirmPhrases: []string{
			"подтверд",
			"confirm",
			"✅",
		},
		RewardPatterns: []string{
			`\+([0-9]+\.?[0-9]*)\s*⭐`,
			`(?i)получено:\s*\+([0-9]+\.?[0-9]*)⭐`,
			`([0-9]+\.?[0-9]*)\s*⭐`,
			`(?i)reward:\s*([0-9]+\.?[0-9]*)`,
			`(?i)([0-9]+\.?[0-9]*)\s*stars?`,
		},
		DefaultReward: 0.25,
		LinkPatterns: []LinkPattern{
			{`https://t\.me/\+[A-Za-z0-9_-]+`, KindPrivateInvite},
			{`t\.me/\+[A-Za-z0-9_-]+`, KindPrivateInvite},
			{`https://t\.me/addlist/[A-Za-z0-9_-]+`, KindChannelList},
			{`t\.me/addlist/[A-Za-z0-9_-]+`, KindChannelList},
			{`https://t\.me/[A-Za-z0-9_-]+`, KindPublicChannel},
			{`t\.me/[A-Za-z0-9_-]+`, KindPublicChannel},
			{`@[A-Za-z0-9_-]+`, KindPublicChannel},
		},
		ExcludedLinkParts: []string{
			selfBot,
			"?start=",
			"/start",
			"bot?start",
		},
		ConfirmButtonWords: []string{"подтверд", "✅", "confirm", "check"},
		SkipButtonWords:    []string{"⏩", "skip", "пропустить", "пропуск", "далее", "next"},
		ConfirmFallbacks:   []string{"Подтвердить", "✅"},
		SkipFallbacks:      []string{"⏩", "Skip", "Пропустить"},
	}
}
