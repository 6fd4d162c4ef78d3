package browser

import (
	"fmt"
	"regexp"
	"strings"
)

var chromeVersion = regexp.MustCompile(`Chrome/(\d+)`)

// initScript runs before any page script on every new document. It hides
// the automation flag and presents a plausible plugin and language set.
func initScript(lang string) string {
	return fmt.Sprintf(`(() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
	Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
	Object.defineProperty(navigator, 'languages', { get: () => %s });
	window.chrome = window.chrome || { runtime: {} };
})();`, jsLanguages(lang))
}

// languages expands "ko-KR" to ko-KR, ko, en-US, en.
func languages(lang string) []string {
	langs := []string{lang}
	if base, _, ok := strings.Cut(lang, "-"); ok && base != "" {
		langs = append(langs, base)
	}
	for _, l := range []string{"en-US", "en"} {
		if !containsFold(langs, l) {
			langs = append(langs, l)
		}
	}
	return langs
}

func jsLanguages(lang string) string {
	langs := languages(lang)
	quoted := make([]string, len(langs))
	for i, l := range langs {
		quoted[i] = "'" + strings.ReplaceAll(l, "'", "") + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// acceptLanguage builds the header value matching navigator.languages.
func acceptLanguage(lang string) string {
	langs := languages(lang)
	parts := []string{langs[0]}
	for i, l := range langs[1:] {
		parts = append(parts, fmt.Sprintf("%s;q=0.%d", l, 9-i))
	}
	return strings.Join(parts, ",")
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// navigationHeaders are the extra request headers a desktop Chrome with
// this user agent and locale sends. Client hints only apply to Chrome user agents.
func navigationHeaders(userAgent, lang string) map[string]string {
	h := map[string]string{"Accept-Language": acceptLanguage(lang)}
	m := chromeVersion.FindStringSubmatch(userAgent)
	if m == nil {
		return h
	}
	h["Sec-Ch-Ua"] = fmt.Sprintf(`"Google Chrome";v="%s", "Chromium";v="%s", "Not_A Brand";v="24"`, m[1], m[1])
	h["Sec-Ch-Ua-Mobile"] = "?0"
	h["Sec-Ch-Ua-Platform"] = fmt.Sprintf("%q", platformOf(userAgent))
	return h
}

func platformOf(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "Windows"):
		return "Windows"
	case strings.Contains(userAgent, "Macintosh"):
		return "macOS"
	default:
		return "Linux"
	}
}
