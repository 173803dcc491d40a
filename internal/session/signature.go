package session

import "strings"

// BlockSignatures lists the page titles and content markers that identify an
// anti-automation rejection page. Matching is case-insensitive substring.
type BlockSignatures struct {
	Titles  []string
	Content []string
}

func DefaultBlockSignatures() BlockSignatures {
	return BlockSignatures{
		Titles: []string{
			"robot check",
			"captcha",
			"access denied",
			"attention required",
			"just a moment",
			"are you a human",
			"tut uns leid",
			"доступ ограничен",
		},
		Content: []string{
			`id="captchacharacters"`,
			"/errors/validatecaptcha",
		},
	}
}

// Match reports whether title or content carries a block signature and
// returns the signature that hit.
func (s BlockSignatures) Match(title, content string) (string, bool) {
	lowerTitle := strings.ToLower(title)
	for _, sig := range s.Titles {
		if sig != "" && strings.Contains(lowerTitle, strings.ToLower(sig)) {
			return sig, true
		}
	}

	if content == "" || len(s.Content) == 0 {
		return "", false
	}

	lowerContent := strings.ToLower(content)
	for _, sig := range s.Content {
		if sig != "" && strings.Contains(lowerContent, strings.ToLower(sig)) {
			return sig, true
		}
	}

	return "", false
}
