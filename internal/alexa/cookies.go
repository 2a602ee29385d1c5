package alexa

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// cookie is the on-disk shape of one browser cookie.
type cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expiry   float64 `json:"expiry,omitempty"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"httpOnly"`
}

// loadCookies reads a saved cookie jar. A missing file is not an error; it
// just means this is a first run and a full sign-in is needed.
func loadCookies(path string) ([]cookie, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cookie jar %s: %w", path, err)
	}
	var jar []cookie
	if err := json.Unmarshal(raw, &jar); err != nil {
		return nil, fmt.Errorf("parsing cookie jar %s: %w", path, err)
	}
	return jar, nil
}

func saveCookies(path string, jar []cookie) error {
	raw, err := json.MarshalIndent(jar, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cookie jar: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("writing cookie jar %s: %w", path, err)
	}
	return nil
}

// restoreCookies installs a saved jar into the browser session.
func restoreCookies(jar []cookie) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		params := make([]*network.CookieParam, 0, len(jar))
		for _, ck := range jar {
			p := &network.CookieParam{
				Name:     ck.Name,
				Value:    ck.Value,
				Domain:   ck.Domain,
				Path:     ck.Path,
				Secure:   ck.Secure,
				HTTPOnly: ck.HTTPOnly,
			}
			if ck.Expiry > 0 {
				expires := cdp.TimeSinceEpoch(time.Unix(int64(ck.Expiry), 0))
				p.Expires = &expires
			}
			params = append(params, p)
		}
		return storage.SetCookies(params).Do(ctx)
	})
}

// captureCookies snapshots the browser's current cookies into jar.
func captureCookies(jar *[]cookie) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return fmt.Errorf("reading browser cookies: %w", err)
		}
		out := make([]cookie, 0, len(cookies))
		for _, ck := range cookies {
			out = append(out, cookie{
				Name:     ck.Name,
				Value:    ck.Value,
				Domain:   ck.Domain,
				Path:     ck.Path,
				Expiry:   ck.Expires,
				Secure:   ck.Secure,
				HTTPOnly: ck.HTTPOnly,
			})
		}
		*jar = out
		return nil
	})
}
