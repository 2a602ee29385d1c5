package alexa

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	d, err := NewDriver(Options{Email: "user@example.com", Password: "hunter2"})
	require.NoError(t, err)
	return d
}

// Shutdown cancels the run context before the deferred Close fires; the
// browser context must survive that so Close can still save the cookie jar.
func TestBrowserOutlivesRunContext(t *testing.T) {
	d := newTestDriver(t)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.startBrowser(ctx))
	t.Cleanup(d.Close)

	cancel()
	require.NoError(t, d.browser.Err(), "browser context must not die with the run context")
}

func TestStartBrowserCanceledContext(t *testing.T) {
	d := newTestDriver(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, d.startBrowser(ctx), context.Canceled)
}

func TestDriverRequiresCredentials(t *testing.T) {
	_, err := NewDriver(Options{Email: "user@example.com"})
	require.Error(t, err)
	_, err = NewDriver(Options{Password: "hunter2"})
	require.Error(t, err)
}
