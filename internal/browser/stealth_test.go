package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInitScriptLanguages(t *testing.T) {
	script := initScript("ko-KR")
	assert.Contains(t, script, "navigator, 'webdriver'")
	assert.Contains(t, script, "['ko-KR', 'ko', 'en-US', 'en']")

	assert.Equal(t, "['en-US', 'en']", jsLanguages("en-US"))
}

func TestAcceptLanguage(t *testing.T) {
	assert.Equal(t, "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7", acceptLanguage("ko-KR"))
	assert.Equal(t, "fr,en-US;q=0.9,en;q=0.8", acceptLanguage("fr"))
}

func TestNavigationHeaders(t *testing.T) {
	h := navigationHeaders("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36", "ko-KR")
	assert.Equal(t, `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`, h["Sec-Ch-Ua"])
	assert.Equal(t, `"Windows"`, h["Sec-Ch-Ua-Platform"])

	safari := navigationHeaders("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 Version/18.2 Safari/605.1.15", "en-US")
	assert.NotContains(t, safari, "Sec-Ch-Ua")
	assert.Equal(t, "en-US,en;q=0.9", safari["Accept-Language"])
}

func TestPauseHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	Pause(ctx, time.Minute, 2*time.Minute)
	assert.Less(t, time.Since(start), time.Second)

	start = time.Now()
	Pause(context.Background(), 5*time.Millisecond, 10*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}
