package page

// X.com DOM selectors
// These are isolated here because X changes their DOM frequently
// Update these when scraping breaks

const (
	// Feed selectors
	FeedContainer = `[data-testid="primaryColumn"]`
	TweetArticle  = `article[data-testid="tweet"]`

	// Login flow
	UsernameInput  = `input[autocomplete="username"]`
	ChallengeInput = `input[data-testid="ocfEnterTextTextInput"]`
	PasswordInput  = `input[name="password"]`
	HomeLink       = `[data-testid="AppTabBar_Home_Link"]`

	// Reply surface
	ReplyTextarea = `[data-testid="tweetTextarea_0"]`
	FollowingTab  = `[role="tablist"] div[role="presentation"]:nth-child(2) [role="tab"]`
)

const (
	HomeURL  = "https://x.com/home"
	LoginURL = "https://x.com/i/flow/login"
)
