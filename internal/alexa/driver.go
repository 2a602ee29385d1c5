// Package alexa drives the Alexa shopping list through a headless Chrome
// session. Amazon exposes no public API for the list, so the driver
// automates the same web page a phone browser would see, signing in with
// the account password and a TOTP code when two-step verification is on.
package alexa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	listPageFmt = "https://www.%s/alexaquantum/sp/alexaShoppingList?ref=nav_asl"

	selListHeader  = ".list-header"
	selAddSymbol   = ".list-header .add-symbol"
	selHeaderInput = ".list-header .input-box input"
	selAddConfirm  = ".list-header .add-to-list button"
	selAddCancel   = ".list-header .cancel-input button"

	signinEmail    = "#ap_email"
	signinContinue = "#continue"
	signinPassword = "#ap_password"
	signinSubmit   = "#signInSubmit"
	signinOTP      = "#auth-mfa-otpcode"
	signinOTPSend  = "#auth-signin-button"

	// The virtual list renders a window of rows; scrolling past the last
	// rendered row loads the next window. renderWait is how long we give
	// the page to settle after each scroll.
	renderWait = 500 * time.Millisecond

	defaultOpTimeout    = 45 * time.Second
	defaultLoginTimeout = 2 * time.Minute

	// Hard cap on scroll passes so a page that never settles cannot hang
	// a sync cycle forever. 200 windows is far beyond any real list.
	maxScrollPasses = 200
)

var errNotSignedIn = errors.New("not signed in to Amazon")

// Options configures the Alexa driver.
type Options struct {
	Email     string
	Password  string
	MFASecret string // base32 TOTP seed, may be unpadded; empty if 2SV is off

	// AmazonDomain is the marketplace host without the www prefix, for
	// example "amazon.co.uk".
	AmazonDomain string

	// CookiesPath persists the browser session between runs so most starts
	// skip the password sign-in. Empty disables persistence.
	CookiesPath string

	// ShowBrowser runs Chrome headful for debugging sign-in trouble.
	ShowBrowser bool

	Logger *slog.Logger

	// now is stubbed in tests.
	now func() time.Time
}

// Driver owns one Chrome tab pinned to the Alexa shopping list page. It is
// not safe for concurrent use; the sync engine serializes all calls.
type Driver struct {
	opts Options
	log  *slog.Logger

	browser      context.Context
	cancelTab    context.CancelFunc
	cancelAlloc  context.CancelFunc
	opTimeout    time.Duration
	loginTimeout time.Duration
}

// NewDriver validates opts but does not launch Chrome; call Start for that.
func NewDriver(opts Options) (*Driver, error) {
	if opts.Email == "" || opts.Password == "" {
		return nil, errors.New("alexa: email and password are required")
	}
	if opts.AmazonDomain == "" {
		opts.AmazonDomain = "amazon.com"
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	return &Driver{
		opts:         opts,
		log:          opts.Logger,
		opTimeout:    defaultOpTimeout,
		loginTimeout: defaultLoginTimeout,
	}, nil
}

// Start launches the browser, restores any saved session cookies, and signs
// in if the saved session has expired.
func (d *Driver) Start(ctx context.Context) error {
	if err := d.startBrowser(ctx); err != nil {
		return err
	}

	if d.opts.CookiesPath != "" {
		jar, err := loadCookies(d.opts.CookiesPath)
		if err != nil {
			d.log.Warn("Ignoring unreadable cookie jar", "path", d.opts.CookiesPath, "error", err)
		} else if len(jar) > 0 {
			d.log.Debug("Restoring saved session", "cookies", len(jar))
			if err := chromedp.Run(d.browser, restoreCookies(jar)); err != nil {
				d.Close()
				return fmt.Errorf("restoring session cookies: %w", err)
			}
		}
	}

	if err := d.openList(ctx); err != nil {
		d.Close()
		return err
	}
	return nil
}

// startBrowser allocates the browser contexts. The allocator is rooted at
// context.Background, not ctx: ctx ends at shutdown, and Close still needs a
// live browser to capture the session cookies. ctx only gates the start.
func (d *Driver) startBrowser(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(412, 915), // phone-ish viewport, matches the page's target layout
	)
	if d.opts.ShowBrowser {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	d.browser = tabCtx
	d.cancelAlloc = cancelAlloc
	d.cancelTab = cancelTab
	return nil
}

// Close saves the session cookies and tears the browser down. Safe to call
// after a failed Start.
func (d *Driver) Close() {
	d.saveSession()
	if d.cancelTab != nil {
		d.cancelTab()
	}
	if d.cancelAlloc != nil {
		d.cancelAlloc()
	}
	d.browser = nil
}

// saveSession captures the browser's cookies into the jar on disk. Failures
// only cost the next start a password sign-in, so they are logged, not
// surfaced.
func (d *Driver) saveSession() {
	if d.browser == nil || d.opts.CookiesPath == "" {
		return
	}
	var jar []cookie
	ctx, cancel := context.WithTimeout(d.browser, 10*time.Second)
	defer cancel()
	if err := chromedp.Run(ctx, captureCookies(&jar)); err != nil {
		d.log.Warn("Could not capture session cookies", "error", err)
		return
	}
	if err := saveCookies(d.opts.CookiesPath, jar); err != nil {
		d.log.Warn("Could not save session cookies", "error", err)
	}
}

// Snapshot scrolls the virtual list from the top and returns every item
// name in display order.
func (d *Driver) Snapshot(ctx context.Context) ([]string, error) {
	if err := d.openList(ctx); err != nil {
		return nil, err
	}

	var names []string
	seen := make(map[string]bool)
	last := ""
	for pass := 0; pass < maxScrollPasses; pass++ {
		var batch []string
		err := d.run(ctx, d.opTimeout, chromedp.Evaluate(
			`Array.from(document.querySelectorAll('.virtual-list .item-title')).map(e => e.innerText.trim())`,
			&batch,
		))
		if err != nil {
			return nil, fmt.Errorf("reading list items: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		for _, name := range batch {
			if name != "" && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
		if batch[len(batch)-1] == last {
			break
		}
		last = batch[len(batch)-1]

		err = d.run(ctx, d.opTimeout,
			chromedp.Evaluate(
				`(() => { const t = document.querySelectorAll('.virtual-list .item-title'); if (t.length) t[t.length-1].scrollIntoView(); })()`,
				nil,
			),
			chromedp.Sleep(renderWait),
		)
		if err != nil {
			return nil, fmt.Errorf("scrolling list: %w", err)
		}
	}
	d.log.Debug("Alexa snapshot", "items", len(names))
	return names, nil
}

// Add appends an item through the header input box.
func (d *Driver) Add(ctx context.Context, name string) error {
	if err := d.openList(ctx); err != nil {
		return err
	}
	err := d.run(ctx, d.opTimeout,
		chromedp.Click(selAddSymbol, chromedp.ByQuery),
		chromedp.WaitVisible(selHeaderInput, chromedp.ByQuery),
		chromedp.SendKeys(selHeaderInput, name, chromedp.ByQuery),
		chromedp.Click(selAddConfirm, chromedp.ByQuery),
		chromedp.Sleep(renderWait),
		chromedp.Click(selAddCancel, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("adding %q to Alexa list: %w", name, err)
	}
	d.log.Debug("Alexa add", "item", name)
	return nil
}

// Remove deletes the first item whose title matches name.
func (d *Driver) Remove(ctx context.Context, name string) error {
	if err := d.scrollTo(ctx, name); err != nil {
		return err
	}
	if err := d.clickRowAction(ctx, name, ".item-actions-2 button"); err != nil {
		return fmt.Errorf("removing %q from Alexa list: %w", name, err)
	}
	d.log.Debug("Alexa remove", "item", name)
	return nil
}

// Rename edits an item in place: open the row editor, replace the text,
// confirm.
func (d *Driver) Rename(ctx context.Context, oldName, newName string) error {
	if err := d.scrollTo(ctx, oldName); err != nil {
		return err
	}
	if err := d.clickRowAction(ctx, oldName, ".item-actions-1 button"); err != nil {
		return fmt.Errorf("opening editor for %q: %w", oldName, err)
	}

	js := fmt.Sprintf(`(() => {
		const rows = document.querySelectorAll('.virtual-list .inner');
		for (const row of rows) {
			const input = row.querySelector('.input-box input');
			if (!input) continue;
			input.value = %q;
			input.dispatchEvent(new Event('input', {bubbles: true}));
			const confirm = row.querySelector('.item-actions-2 button');
			if (!confirm) return false;
			confirm.click();
			return true;
		}
		return false;
	})()`, newName)

	var ok bool
	err := d.run(ctx, d.opTimeout,
		chromedp.WaitVisible(".virtual-list .input-box input", chromedp.ByQuery),
		chromedp.Evaluate(js, &ok),
		chromedp.Sleep(renderWait),
	)
	if err != nil {
		return fmt.Errorf("renaming %q to %q: %w", oldName, newName, err)
	}
	if !ok {
		return fmt.Errorf("renaming %q: editor row disappeared", oldName)
	}
	d.log.Debug("Alexa rename", "from", oldName, "to", newName)
	return nil
}

// openList navigates to the shopping list page and signs in when Amazon
// bounces us to the sign-in form instead.
func (d *Driver) openList(ctx context.Context) error {
	url := fmt.Sprintf(listPageFmt, d.opts.AmazonDomain)
	var location string
	err := d.run(ctx, d.opTimeout,
		chromedp.Navigate(url),
		chromedp.Sleep(renderWait),
		chromedp.Location(&location),
	)
	if err != nil {
		return fmt.Errorf("opening Alexa list page: %w", err)
	}

	if strings.Contains(location, "ap/signin") || strings.Contains(location, "ap/mfa") {
		d.log.Info("Session expired, signing in to Amazon")
		if err := d.signIn(ctx); err != nil {
			return err
		}
		err = d.run(ctx, d.opTimeout,
			chromedp.Navigate(url),
			chromedp.WaitVisible(selListHeader, chromedp.ByQuery),
		)
		if err != nil {
			return fmt.Errorf("opening Alexa list page after sign-in: %w", err)
		}
		// Persist the fresh session right away; a hard kill later should
		// not cost the next start another password sign-in.
		d.saveSession()
		return nil
	}

	if err := d.run(ctx, d.opTimeout, chromedp.WaitVisible(selListHeader, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("waiting for Alexa list: %w", err)
	}
	return nil
}

// signIn walks the Amazon sign-in flow from whatever page we are currently
// on: email (with an optional continue step), password, then a TOTP
// challenge when two-step verification is enabled.
func (d *Driver) signIn(ctx context.Context) error {
	err := d.run(ctx, d.loginTimeout,
		chromedp.WaitVisible(signinEmail, chromedp.ByQuery),
		chromedp.SendKeys(signinEmail, d.opts.Email, chromedp.ByQuery),
		clickIfPresent(signinContinue),
		chromedp.WaitVisible(signinPassword, chromedp.ByQuery),
		chromedp.SendKeys(signinPassword, d.opts.Password, chromedp.ByQuery),
		chromedp.Click(signinSubmit, chromedp.ByQuery),
		chromedp.Sleep(2*renderWait),
	)
	if err != nil {
		return fmt.Errorf("submitting Amazon credentials: %w", err)
	}

	var otpVisible bool
	err = d.run(ctx, d.opTimeout, chromedp.Evaluate(
		fmt.Sprintf(`document.querySelector(%q) !== null`, signinOTP), &otpVisible,
	))
	if err != nil {
		return fmt.Errorf("checking for two-step challenge: %w", err)
	}
	if otpVisible {
		if d.opts.MFASecret == "" {
			return fmt.Errorf("%w: account requires a one-time code but no TOTP secret is configured", errNotSignedIn)
		}
		code, err := totpCode(d.opts.MFASecret, d.opts.now())
		if err != nil {
			return err
		}
		err = d.run(ctx, d.loginTimeout,
			chromedp.SendKeys(signinOTP, code, chromedp.ByQuery),
			chromedp.Click(signinOTPSend, chromedp.ByQuery),
			chromedp.Sleep(2*renderWait),
		)
		if err != nil {
			return fmt.Errorf("submitting one-time code: %w", err)
		}
	}

	var location string
	if err := d.run(ctx, d.opTimeout, chromedp.Location(&location)); err != nil {
		return err
	}
	if strings.Contains(location, "ap/signin") || strings.Contains(location, "ap/mfa") {
		return fmt.Errorf("%w: still on %s after submitting credentials", errNotSignedIn, location)
	}
	d.log.Info("Signed in to Amazon")
	return nil
}

// scrollTo scrolls the virtual list until a row with the given title is
// rendered.
func (d *Driver) scrollTo(ctx context.Context, name string) error {
	if err := d.openList(ctx); err != nil {
		return err
	}
	findJS := fmt.Sprintf(`(() => {
		const titles = document.querySelectorAll('.virtual-list .item-title');
		for (const t of titles) {
			if (t.innerText.trim() === %q) { t.scrollIntoView(); return "found"; }
		}
		if (titles.length === 0) return "";
		titles[titles.length-1].scrollIntoView();
		return titles[titles.length-1].innerText.trim();
	})()`, name)

	last := ""
	for pass := 0; pass < maxScrollPasses; pass++ {
		var result string
		if err := d.run(ctx, d.opTimeout, chromedp.Evaluate(findJS, &result)); err != nil {
			return fmt.Errorf("searching for %q: %w", name, err)
		}
		switch result {
		case "found":
			return nil
		case "", last:
			return fmt.Errorf("item %q not present on Alexa list", name)
		}
		last = result
		if err := d.run(ctx, d.opTimeout, chromedp.Sleep(renderWait)); err != nil {
			return err
		}
	}
	return fmt.Errorf("item %q not present on Alexa list", name)
}

// clickRowAction clicks a button inside the rendered row whose title
// matches name. The caller must have scrolled the row into view first.
func (d *Driver) clickRowAction(ctx context.Context, name, buttonSel string) error {
	js := fmt.Sprintf(`(() => {
		const rows = document.querySelectorAll('.virtual-list .inner');
		for (const row of rows) {
			const t = row.querySelector('.item-title');
			if (t && t.innerText.trim() === %q) {
				const b = row.querySelector(%q);
				if (!b) return false;
				b.click();
				return true;
			}
		}
		return false;
	})()`, name, buttonSel)

	var ok bool
	err := d.run(ctx, d.opTimeout,
		chromedp.Evaluate(js, &ok),
		chromedp.Sleep(renderWait),
	)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("row for %q has no %s control", name, buttonSel)
	}
	return nil
}

// run executes actions on the browser tab with a deadline, bailing early if
// the caller's ctx is already done.
func (d *Driver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.browser == nil {
		return errors.New("alexa: driver not started")
	}
	tctx, cancel := context.WithTimeout(d.browser, timeout)
	defer cancel()
	return chromedp.Run(tctx, actions...)
}

// clickIfPresent clicks sel when it exists and does nothing otherwise. Some
// marketplaces show the email and password fields on one page, others split
// them with a continue button.
func clickIfPresent(sel string) chromedp.Action {
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (el) { el.click(); return true; }
		return false;
	})()`, sel)
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var clicked bool
		if err := chromedp.Evaluate(js, &clicked).Do(ctx); err != nil {
			return err
		}
		return nil
	})
}
