package ladder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLadder(t *testing.T) {
	l := Default()

	assert.Equal(t, "/rooms/", l.DetailPath)
	assert.Equal(t, "aria-labelledby", l.Bulk.LabelAttr)
	assert.Equal(t, 10*time.Second, l.Fallback.WaitTimeout)
	require.NotEmpty(t, l.Bulk.Price)
	assert.Equal(t, ScopeRow, l.Bulk.Price[0].Scope)
	assert.Equal(t, ScopeCard, l.Bulk.Price[len(l.Bulk.Price)-1].Scope)
	assert.NotEmpty(t, l.Pagination.Next)
}

func TestStrategyAccept(t *testing.T) {
	l := Default()

	currency := l.Bulk.Price[2]
	assert.True(t, currency.Accept("₩120,000"))
	assert.False(t, currency.Accept("총액 ₩120,000"))
	assert.False(t, currency.Accept("₩1,000,000,000,000,000,000"))

	labeled := l.Bulk.Rating[0]
	assert.True(t, labeled.Accept("평점 4.88점(5점 만점), 후기 550개"))
	assert.False(t, labeled.Accept("신규"))

	hidden := l.Bulk.Rating[1]
	assert.True(t, hidden.Accept("4.88 (550)"))
	assert.False(t, hidden.Accept("4.88"))

	assert.False(t, Strategy{}.Accept(""))
}

func TestParseRejectsBrokenLadders(t *testing.T) {
	_, err := Parse([]byte(`bulk: {anchor: "a[", card_marker: "div"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bulk.anchor")
	assert.Contains(t, err.Error(), "fallback.cards: empty ladder")

	_, err = Parse([]byte(`detail_path: [oops`))
	assert.Error(t, err)
}

func TestParseRejectsBadStrategy(t *testing.T) {
	doc := `
bulk:
  anchor: a
  card_marker: div
  price: [{selector: span, scope: page}]
  rating: [{selector: span, match: "("}]
  address: [{selector: span}]
fallback:
  cards: [a]
  link: [a]
  title: [h2]
  price: [span]
  rating: [span]
  address: [span]
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown scope "page"`)
	assert.Contains(t, err.Error(), "bulk.rating[0]: match")
}

func TestParseChecksFallbackAndPagerSelectors(t *testing.T) {
	doc := `
bulk:
  anchor: a
  card_marker: div
  price: [{selector: span}]
  rating: [{selector: span}]
  address: [{selector: span}]
fallback:
  cards: ['div[data-testid="listing-card"']
  link: [a]
  title: [h2, "  "]
  price: [span]
  rating: [span]
  address: [span]
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback.cards[0]")
	assert.Contains(t, err.Error(), "fallback.title[1]: empty selector")
	assert.Contains(t, err.Error(), "pagination.next: empty ladder")

	_, err = Parse([]byte(doc + "pagination:\n  next: ['a[aria-label*=\"Next\"']\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pagination.next[0]")
}

func TestLoadFromFile(t *testing.T) {
	l, err := Load("")
	require.NoError(t, err)
	assert.NotNil(t, l)

	path := filepath.Join(t.TempDir(), "selectors.yaml")
	require.NoError(t, os.WriteFile(path, embedded, 0o644))
	l, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Fallback.Cards, l.Fallback.Cards)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
