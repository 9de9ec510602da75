package browser

import "math/rand"

// Identity is a realistic user agent + viewport pairing used for new
// browsing contexts so automated runs do not all present the same
// fingerprint.
type Identity struct {
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
}

var identities = []Identity{
	{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
	},
	{
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		ViewportWidth:  1440,
		ViewportHeight: 900,
	},
	{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
		ViewportWidth:  1536,
		ViewportHeight: 864,
	},
	{
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
		ViewportWidth:  1680,
		ViewportHeight: 1050,
	},
	{
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
		ViewportWidth:  1366,
		ViewportHeight: 768,
	},
}

// PickIdentity selects a random identity. The rng is injected so runs are
// reproducible under test.
func PickIdentity(rng *rand.Rand) Identity {
	return identities[rng.Intn(len(identities))]
}
