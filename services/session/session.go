// Package session builds the authenticated HTTP client every other
// service talks through. Login itself happens elsewhere: a profile file
// carries previously captured cookies and the CSRF token.
package session

import (
	"cardbuff/lib/osutil"
	"cardbuff/lib/telemetry"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

const defaultTimeout = time.Second * 15

type Profile struct {
	UserID    int64             `json:"user_id"`
	Name      string            `json:"name"`
	Cookies   map[string]string `json:"cookies"`
	CSRFToken string            `json:"csrf_token"`
	BoostURL  string            `json:"boost_url"`
}

func LoadProfile(path string) (Profile, error) {
	var p Profile
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	err = json.Unmarshal(raw, &p)
	if err != nil {
		return p, fmt.Errorf("profile %s: %w", filepath.Base(path), err)
	}
	if p.UserID == 0 {
		return p, fmt.Errorf("profile %s: no user id", filepath.Base(path))
	}
	return p, nil
}

func SaveProfile(path string, p Profile) error {
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return osutil.WriteFileAtomic(path, raw)
}

type Client struct {
	BaseURL *url.URL
	// Http follows same-domain redirects, for page scraping.
	Http *resty.Client
	// Api surfaces redirect responses instead of following them. Some
	// endpoints answer with a redirect whose Location is the result.
	Api     *resty.Client
	Profile Profile
}

type ClientOptions struct {
	BaseURL string
	Profile Profile
	// Timeout overrides the default per-request timeout when nonzero.
	Timeout time.Duration
}

func NewClient(opts ClientOptions) (*Client, error) {
	baseURL, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	var cookies []*http.Cookie
	for name, value := range opts.Profile.Cookies {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	jar.SetCookies(baseURL, cookies)

	client := newResty(opts, jar)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseURL.Hostname()))

	api := newResty(opts, jar)
	api.SetRedirectPolicy(resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}))

	c := &Client{
		BaseURL: baseURL,
		Http:    client,
		Api:     api,
		Profile: opts.Profile,
	}
	return c, nil
}

func newResty(opts ClientOptions, jar http.CookieJar) *resty.Client {
	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetHeader("x-requested-with", "XMLHttpRequest")
	if opts.Profile.CSRFToken != "" {
		client.SetHeader("x-csrf-token", opts.Profile.CSRFToken)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	client.SetTimeout(timeout)

	telemetry.InstrumentResty(client, "cardbuff.services.session")
	return client
}
