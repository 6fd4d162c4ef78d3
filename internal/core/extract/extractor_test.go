package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayscraper/internal/browser"
	"stayscraper/internal/core/ladder"
	"stayscraper/internal/core/listing"
)

const (
	testBase   = "https://www.airbnb.co.kr"
	testSearch = "https://www.airbnb.co.kr/s/Seoul/homes?adults=2"
)

func fixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

func openPage(t *testing.T, html string) browser.Session {
	t.Helper()
	s, err := browser.NewSnapshot(html)
	require.NoError(t, err)
	require.NoError(t, s.Navigate(context.Background(), testSearch))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBulkExtractsCards(t *testing.T) {
	s := openPage(t, fixture(t, "results.html"))
	x := New(ladder.Default(), testBase)

	recs, err := x.Bulk(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, listing.Record{
		No:      1,
		Title:   "Mapo-gu apartment",
		Price:   "₩294,000",
		Address: "Hongdae loft near station",
		Rating:  "평점 4.88점(5점 만점), 후기 550개",
		URL:     "https://www.airbnb.co.kr/rooms/111?check_in=2025-05-01&adults=2",
		ID:      "111",
	}, recs[0])

	// the hidden "4.75 (120)" span is used when no labeled rating exists
	assert.Equal(t, "Seongsu studio", recs[1].Title)
	assert.Equal(t, "₩75,000", recs[1].Price)
	assert.Equal(t, "4.75 (120)", recs[1].Rating)
	assert.Equal(t, "Seongdong-gu", recs[1].Address)
	assert.Equal(t, "https://www.airbnb.co.kr/rooms/222", recs[1].URL)

	assert.Equal(t, "Listing 3", recs[2].Title)
	assert.Equal(t, "₩61,000", recs[2].Price)
	assert.Equal(t, "", recs[2].Rating)
	assert.Equal(t, "Jeju", recs[2].Address)
	assert.Equal(t, 3, recs[2].No)
}

func TestBulkAndFallbackAgreeOnIdentity(t *testing.T) {
	s := openPage(t, fixture(t, "results.html"))
	x := New(ladder.Default(), testBase)

	bulk, err := x.Bulk(context.Background(), s)
	require.NoError(t, err)
	fallback, err := x.Fallback(context.Background(), s)
	require.NoError(t, err)

	require.Len(t, fallback, len(bulk))
	for i := range bulk {
		assert.Equal(t, bulk[i].URL, fallback[i].URL)
		assert.Equal(t, bulk[i].Title, fallback[i].Title)
		assert.Equal(t, bulk[i].ID, fallback[i].ID)
	}
}

func TestExtractFallsBackWhenAnchorsDrift(t *testing.T) {
	s := openPage(t, fixture(t, "drifted.html"))
	x := New(ladder.Default(), testBase)

	bulk, err := x.Bulk(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, bulk)

	recs, err := x.Extract(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, listing.Record{
		No:      1,
		Title:   "Busan ocean view",
		Price:   "₩120,000",
		Address: "Haeundae-gu",
		Rating:  "평점 4.9",
		URL:     "https://www.airbnb.co.kr/rooms/444",
		ID:      "444",
	}, recs[0])
	assert.Equal(t, listing.Record{
		No:      2,
		Title:   "Gangneung hanok",
		Price:   "₩88,000",
		Address: "Gangneung",
		Rating:  "4.97 (31)",
		URL:     "https://www.airbnb.co.kr/rooms/555?source=search",
		ID:      "555",
	}, recs[1])
}

func TestFallbackContainerCards(t *testing.T) {
	l := ladder.Default()
	l.Fallback.Cards = []string{`[data-testid="listing-card"]`}
	x := New(l, testBase)

	s := openPage(t, `<html><body><main>
<a href="/rooms/666"><div data-testid="listing-card"><div data-testid="listing-card-title">Wrapped</div></div></a>
<div data-testid="listing-card"><section><a href="/rooms/777?adults=1"><img></a></section><h2>Nested</h2></div>
<div data-testid="listing-card"><span>Sold out</span></div>
</main></body></html>`)

	recs, err := x.Fallback(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "Wrapped", recs[0].Title)
	assert.Equal(t, "https://www.airbnb.co.kr/rooms/666", recs[0].URL)
	assert.Equal(t, "Nested", recs[1].Title)
	assert.Equal(t, "777", recs[1].ID)
	assert.Equal(t, 2, recs[1].No)
}

// staleCards serves the snapshot's cards with the ones at the given
// indexes detached from the page.
type staleCards struct {
	browser.Session
	stale map[int]bool
}

func (s staleCards) WaitAll(ctx context.Context, selector string, timeout time.Duration) ([]browser.Element, error) {
	els, err := s.Session.WaitAll(ctx, selector, timeout)
	for i := range els {
		if s.stale[i] {
			els[i] = detached{els[i]}
		}
	}
	return els, err
}

type detached struct{ browser.Element }

func (detached) Tag(context.Context) (string, error) {
	return "", errors.New("node is detached from document")
}

const threeCards = `<html><body><main>
<div data-testid="listing-card"><a href="/rooms/801"></a><h2>First</h2></div>
<div data-testid="listing-card"><a href="/rooms/802"></a><h2>Second</h2></div>
<div data-testid="listing-card"><a href="/rooms/803"></a><h2>Third</h2></div>
</main></body></html>`

func TestFallbackSkipsFailingCard(t *testing.T) {
	l := ladder.Default()
	l.Fallback.Cards = []string{`[data-testid="listing-card"]`}
	x := New(l, testBase)

	s := staleCards{Session: openPage(t, threeCards), stale: map[int]bool{1: true}}
	recs, err := x.Fallback(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "First", recs[0].Title)
	assert.Equal(t, 1, recs[0].No)
	assert.Equal(t, "801", recs[0].ID)
	assert.Equal(t, "Third", recs[1].Title)
	assert.Equal(t, 2, recs[1].No)
	assert.Equal(t, "803", recs[1].ID)
}

func TestFallbackFailsWhenEveryCardFails(t *testing.T) {
	l := ladder.Default()
	l.Fallback.Cards = []string{`[data-testid="listing-card"]`}
	x := New(l, testBase)

	s := staleCards{Session: openPage(t, threeCards), stale: map[int]bool{0: true, 1: true, 2: true}}
	recs, err := x.Fallback(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 3 cards failed")
	assert.Contains(t, err.Error(), "detached")
	assert.Nil(t, recs)
}

func TestExtractEmptyPage(t *testing.T) {
	s := openPage(t, `<html><body><p>검색 결과가 없습니다</p></body></html>`)
	x := New(ladder.Default(), testBase)

	recs, err := x.Extract(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

// brokenSession fails every document read; WaitAll returns waitErr.
type brokenSession struct {
	browser.Session
	waitErr error
}

func (b brokenSession) Document(context.Context) (string, error) {
	return "", errors.New("target closed")
}

func (b brokenSession) WaitAll(context.Context, string, time.Duration) ([]browser.Element, error) {
	return nil, b.waitErr
}

func TestExtractUnreadablePage(t *testing.T) {
	x := New(ladder.Default(), testBase)

	_, err := x.Extract(context.Background(), brokenSession{waitErr: errors.New("websocket: close 1006")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page unreadable")

	// nothing matched on the fallback side: the page is empty, not broken
	recs, err := x.Extract(context.Background(), brokenSession{waitErr: browser.ErrNoElement})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestExtractHonoursCancellation(t *testing.T) {
	s := openPage(t, `<html><body></body></html>`)
	x := New(ladder.Default(), testBase)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := x.Extract(ctx, s)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveURL(t *testing.T) {
	x := New(ladder.Default(), testBase)

	assert.Equal(t, "https://www.airbnb.co.kr/rooms/1", resolveURL(x.baseURL, "/rooms/1"))
	assert.Equal(t, "https://example.com/rooms/2", resolveURL(x.baseURL, "https://example.com/rooms/2"))
	assert.Equal(t, "", resolveURL(nil, "/rooms/3"))
	assert.Equal(t, "", resolveURL(x.baseURL, ""))
	assert.Equal(t, `a\"b`, cssString(`a"b`))
}
