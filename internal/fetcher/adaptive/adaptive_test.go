package adaptive

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadership-finder/internal/headless/detector"
	"github.com/JakeFAU/leadership-finder/internal/leadership"
	"github.com/JakeFAU/leadership-finder/internal/policy/simple"
)

type mockFetcher struct{ mock.Mock }

func (m *mockFetcher) Fetch(ctx context.Context, req leadership.FetchRequest) (leadership.FetchResponse, error) {
	args := m.Called(ctx, req.URL)
	resp, _ := args.Get(0).(leadership.FetchResponse)
	return resp, args.Error(1)
}

type mockBrowser struct {
	mockFetcher
	closed int
}

func (m *mockBrowser) Close() { m.closed++ }

type mockLauncher struct {
	browser  *mockBrowser
	err      error
	launches int
}

func (l *mockLauncher) NewBrowser(context.Context) (leadership.Browser, error) {
	l.launches++
	if l.err != nil {
		return nil, l.err
	}
	return l.browser, nil
}

var goodHTML = "<html><body><h2>Priya Shah</h2><p>Chief Technology Officer</p>" + strings.Repeat("<p>filler text</p>", 40) + "</body></html>"

const captchaHTML = `<html><body><div class="g-recaptcha"></div><p>Please verify you are human before continuing to this website and its content.</p>` +
	`<p>This check protects the site from automated abuse and will only take a moment of your time.</p>` +
	`<p>If the problem persists contact the site owner with the reference shown below.</p></body></html>`

func TestSessionPlainSuccess(t *testing.T) {
	t.Parallel()

	plain := &mockFetcher{}
	plain.On("Fetch", mock.Anything, "https://acme.test/team").
		Return(leadership.FetchResponse{URL: "https://acme.test/team", StatusCode: 200, Body: []byte(goodHTML)}, nil)

	f := New(Config{}, plain, &mockLauncher{}, nil, nil, zap.NewNop())
	state := &leadership.AttemptState{}
	sess := f.Open(state)
	defer sess.Close()

	page, err := sess.Fetch(context.Background(), "https://acme.test/team")
	require.NoError(t, err)
	require.False(t, page.Rendered)
	require.Contains(t, page.HTML, "Priya Shah")
	require.False(t, state.Escalated)
	plain.AssertExpectations(t)
}

func TestSessionEscalatesOnBlockAndSticks(t *testing.T) {
	t.Parallel()

	plain := &mockFetcher{}
	plain.On("Fetch", mock.Anything, "https://acme.test/team").
		Return(leadership.FetchResponse{StatusCode: 200, Body: []byte(captchaHTML)}, nil).Once()

	browser := &mockBrowser{}
	browser.On("Fetch", mock.Anything, "https://acme.test/team").
		Return(leadership.FetchResponse{URL: "https://acme.test/team", StatusCode: 200, Body: []byte(goodHTML), UsedHeadless: true}, nil)
	browser.On("Fetch", mock.Anything, "https://acme.test/about").
		Return(leadership.FetchResponse{URL: "https://acme.test/about", StatusCode: 200, Body: []byte(goodHTML), UsedHeadless: true}, nil)
	launcher := &mockLauncher{browser: browser}

	f := New(Config{}, plain, launcher, detector.NewHeuristic(0), nil, zap.NewNop())
	state := &leadership.AttemptState{}
	sess := f.Open(state)

	page, err := sess.Fetch(context.Background(), "https://acme.test/team")
	require.NoError(t, err)
	require.True(t, page.Rendered)
	require.True(t, state.Escalated)

	page, err = sess.Fetch(context.Background(), "https://acme.test/about")
	require.NoError(t, err)
	require.True(t, page.Rendered)

	sess.Close()
	require.Equal(t, 1, launcher.launches)
	require.Equal(t, 1, browser.closed)
	plain.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestSessionBlockedWithoutBrowser(t *testing.T) {
	t.Parallel()

	plain := &mockFetcher{}
	plain.On("Fetch", mock.Anything, mock.Anything).
		Return(leadership.FetchResponse{StatusCode: http.StatusForbidden, Body: []byte("denied")}, nil)

	f := New(Config{}, plain, &mockLauncher{err: leadership.ErrHeadlessUnavailable}, nil, nil, zap.NewNop())
	state := &leadership.AttemptState{}
	sess := f.Open(state)
	defer sess.Close()

	_, err := sess.Fetch(context.Background(), "https://acme.test/team")
	require.Error(t, err)
	require.Equal(t, leadership.FailureBlocked, leadership.ClassifyError(err))
	require.False(t, state.Escalated, "escalation requires a working browser")

	_, err = sess.Fetch(context.Background(), "https://acme.test/about")
	require.Equal(t, leadership.FailureBlocked, leadership.ClassifyError(err))
	plain.AssertNumberOfCalls(t, "Fetch", 2)
}

func TestSessionHonorsEscalationPolicy(t *testing.T) {
	t.Parallel()

	plain := &mockFetcher{}
	plain.On("Fetch", mock.Anything, "https://acme.test/team").
		Return(leadership.FetchResponse{StatusCode: 200, Body: []byte(captchaHTML)}, nil)
	launcher := &mockLauncher{browser: &mockBrowser{}}

	f := New(Config{Escalation: simple.New("acme.test")}, plain, launcher, nil, nil, zap.NewNop())
	state := &leadership.AttemptState{}
	sess := f.Open(state)
	defer sess.Close()

	_, err := sess.Fetch(context.Background(), "https://acme.test/team")
	require.Equal(t, leadership.FailureBlocked, leadership.ClassifyError(err))
	require.False(t, state.Escalated)
	require.Zero(t, launcher.launches)
}

func TestSessionClassifiesFailures(t *testing.T) {
	t.Parallel()

	plain := &mockFetcher{}
	plain.On("Fetch", mock.Anything, "https://acme.test/missing").
		Return(leadership.FetchResponse{StatusCode: http.StatusNotFound, Body: []byte(goodHTML)}, nil)
	plain.On("Fetch", mock.Anything, "https://acme.test/slow").
		Return(leadership.FetchResponse{}, context.DeadlineExceeded)
	plain.On("Fetch", mock.Anything, "https://acme.test/down").
		Return(leadership.FetchResponse{}, leadership.NewFetchError(leadership.FailureConnection, "https://acme.test/down", 0, errors.New("refused")))

	f := New(Config{}, plain, nil, nil, nil, zap.NewNop())
	sess := f.Open(nil)
	defer sess.Close()

	_, err := sess.Fetch(context.Background(), "https://acme.test/missing")
	var fe *leadership.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, leadership.FailureHTTP, fe.Class)
	require.Equal(t, http.StatusNotFound, fe.StatusCode)

	_, err = sess.Fetch(context.Background(), "https://acme.test/slow")
	require.Equal(t, leadership.FailureTimeout, leadership.ClassifyError(err))

	_, err = sess.Fetch(context.Background(), "https://acme.test/down")
	require.Equal(t, leadership.FailureConnection, leadership.ClassifyError(err))
}

func TestSessionBrowserBlockedPage(t *testing.T) {
	t.Parallel()

	browser := &mockBrowser{}
	browser.On("Fetch", mock.Anything, mock.Anything).
		Return(leadership.FetchResponse{StatusCode: 200, Body: []byte(captchaHTML)}, nil)

	f := New(Config{}, &mockFetcher{}, &mockLauncher{browser: browser}, nil, nil, zap.NewNop())
	state := &leadership.AttemptState{Escalated: true}
	sess := f.Open(state)
	defer sess.Close()

	_, err := sess.Fetch(context.Background(), "https://acme.test/team")
	require.Equal(t, leadership.FailureBlocked, leadership.ClassifyError(err))
}

type countingPoliteness struct{ calls int }

func (p *countingPoliteness) Wait(context.Context, string) error {
	p.calls++
	return nil
}

func TestSessionWaitsForPoliteness(t *testing.T) {
	t.Parallel()

	plain := &mockFetcher{}
	plain.On("Fetch", mock.Anything, mock.Anything).
		Return(leadership.FetchResponse{StatusCode: 200, Body: []byte(goodHTML)}, nil)
	polite := &countingPoliteness{}

	sess := New(Config{}, plain, nil, nil, polite, zap.NewNop()).Open(&leadership.AttemptState{})
	defer sess.Close()
	for _, u := range []string{"https://acme.test", "https://acme.test/team"} {
		_, err := sess.Fetch(context.Background(), u)
		require.NoError(t, err)
	}
	require.Equal(t, 2, polite.calls)
}
