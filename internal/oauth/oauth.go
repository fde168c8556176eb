// Package oauth exchanges authorization codes for platform credentials and
// refreshes them before they lapse. The auth server drives the exchange
// path; the worker's refresh job drives the rest.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	config "github.com/maheshrc27/clippost/configs"
	"github.com/maheshrc27/clippost/internal/models"
)

const (
	tiktokAuthURL  = "https://www.tiktok.com/v2/auth/authorize/"
	tiktokTokenURL = "https://open.tiktokapis.com/v2/oauth/token/"

	facebookAuthURL  = "https://www.facebook.com/v21.0/dialog/oauth"
	facebookGraphURL = "https://graph.facebook.com/v21.0"
)

var tiktokScopes = []string{"user.info.basic", "video.publish", "video.upload"}

var instagramScopes = []string{"instagram_basic", "instagram_content_publish", "pages_show_list"}

var youtubeScopes = []string{"https://www.googleapis.com/auth/youtube.upload"}

type Exchanger struct {
	cfg    *config.Config
	client *http.Client
}

func New(cfg *config.Config) *Exchanger {
	return &Exchanger{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// AuthURL builds the consent URL a user is redirected to for a platform.
func (e *Exchanger) AuthURL(platform, state string) (string, error) {
	switch platform {
	case "tiktok":
		q := url.Values{
			"client_key":    {e.cfg.TiktokClientKey},
			"scope":         {strings.Join(tiktokScopes, ",")},
			"response_type": {"code"},
			"redirect_uri":  {e.cfg.TiktokRedirectURI},
			"state":         {state},
		}
		return tiktokAuthURL + "?" + q.Encode(), nil

	case "instagram":
		q := url.Values{
			"client_id":     {e.cfg.InstagramClientID},
			"redirect_uri":  {e.cfg.InstagramRedirectURI},
			"scope":         {strings.Join(instagramScopes, ",")},
			"response_type": {"code"},
			"state":         {state},
		}
		return facebookAuthURL + "?" + q.Encode(), nil

	case "youtube":
		return e.googleConfig().AuthCodeURL(state,
			oauth2.AccessTypeOffline,
			oauth2.SetAuthURLParam("prompt", "consent")), nil

	default:
		return "", fmt.Errorf("unknown platform %q", platform)
	}
}

// Exchange swaps an authorization code for a stored credential.
func (e *Exchanger) Exchange(ctx context.Context, platform, code string) (*models.Credential, error) {
	switch platform {
	case "tiktok":
		return e.exchangeTiktok(ctx, url.Values{
			"client_key":    {e.cfg.TiktokClientKey},
			"client_secret": {e.cfg.TiktokClientSecret},
			"code":          {code},
			"grant_type":    {"authorization_code"},
			"redirect_uri":  {e.cfg.TiktokRedirectURI},
		})
	case "instagram":
		return e.exchangeInstagram(ctx, code)
	case "youtube":
		return e.exchangeGoogle(ctx, code)
	default:
		return nil, fmt.Errorf("unknown platform %q", platform)
	}
}

// Refresh renews a credential that carries a refresh path. Platforms without
// one return the credential unchanged.
func (e *Exchanger) Refresh(ctx context.Context, platform string, cred *models.Credential) (*models.Credential, error) {
	switch platform {
	case "tiktok":
		if cred.RefreshToken == "" {
			return nil, fmt.Errorf("tiktok credential has no refresh token")
		}
		renewed, err := e.exchangeTiktok(ctx, url.Values{
			"client_key":    {e.cfg.TiktokClientKey},
			"client_secret": {e.cfg.TiktokClientSecret},
			"grant_type":    {"refresh_token"},
			"refresh_token": {cred.RefreshToken},
		})
		if err != nil {
			return nil, err
		}
		renewed.AccountID = cred.AccountID
		return renewed, nil

	case "instagram":
		return e.refreshInstagram(ctx, cred)

	case "youtube":
		source := e.googleConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
		token, err := source.Token()
		if err != nil {
			return nil, fmt.Errorf("refresh google token: %w", err)
		}
		renewed := credentialFromOauth2(token, youtubeScopes)
		renewed.AccountID = cred.AccountID
		if renewed.RefreshToken == "" {
			renewed.RefreshToken = cred.RefreshToken
		}
		return renewed, nil

	default:
		return nil, fmt.Errorf("unknown platform %q", platform)
	}
}

func (e *Exchanger) googleConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     e.cfg.GoogleClientID,
		ClientSecret: e.cfg.GoogleClientSecret,
		RedirectURL:  e.cfg.GoogleRedirectURI,
		Scopes:       youtubeScopes,
		Endpoint:     google.Endpoint,
	}
}

func (e *Exchanger) exchangeGoogle(ctx context.Context, code string) (*models.Credential, error) {
	token, err := e.googleConfig().Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange google code: %w", err)
	}
	return credentialFromOauth2(token, youtubeScopes), nil
}

type tiktokTokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	OpenID           string `json:"open_id"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e *Exchanger) exchangeTiktok(ctx context.Context, form url.Values) (*models.Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tiktokTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var parsed tiktokTokenResponse
	if err := e.doJSON(req, &parsed); err != nil {
		return nil, fmt.Errorf("tiktok token: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("tiktok token: %s: %s", parsed.Error, parsed.ErrorDescription)
	}
	if parsed.AccessToken == "" {
		return nil, fmt.Errorf("tiktok token: empty access token")
	}

	return &models.Credential{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		Scopes:       strings.Split(parsed.Scope, ","),
		TokenExpiry:  time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second),
		AccountID:    parsed.OpenID,
	}, nil
}

type facebookTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (e *Exchanger) exchangeInstagram(ctx context.Context, code string) (*models.Credential, error) {
	q := url.Values{
		"client_id":     {e.cfg.InstagramClientID},
		"client_secret": {e.cfg.InstagramClientSecret},
		"redirect_uri":  {e.cfg.InstagramRedirectURI},
		"code":          {code},
	}

	short, err := e.facebookToken(ctx, q)
	if err != nil {
		return nil, err
	}

	// Trade the short-lived token for a ~60-day one.
	long, err := e.facebookToken(ctx, url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {e.cfg.InstagramClientID},
		"client_secret":     {e.cfg.InstagramClientSecret},
		"fb_exchange_token": {short.AccessToken},
	})
	if err != nil {
		return nil, err
	}

	accountID, err := e.instagramAccountID(ctx, long.AccessToken)
	if err != nil {
		return nil, err
	}

	cred := &models.Credential{
		AccessToken: long.AccessToken,
		Scopes:      instagramScopes,
		AccountID:   accountID,
	}
	if long.ExpiresIn > 0 {
		cred.TokenExpiry = time.Now().Add(time.Duration(long.ExpiresIn) * time.Second)
	}
	return cred, nil
}

func (e *Exchanger) refreshInstagram(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	long, err := e.facebookToken(ctx, url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {e.cfg.InstagramClientID},
		"client_secret":     {e.cfg.InstagramClientSecret},
		"fb_exchange_token": {cred.AccessToken},
	})
	if err != nil {
		return nil, err
	}

	renewed := &models.Credential{
		AccessToken: long.AccessToken,
		Scopes:      cred.Scopes,
		AccountID:   cred.AccountID,
	}
	if long.ExpiresIn > 0 {
		renewed.TokenExpiry = time.Now().Add(time.Duration(long.ExpiresIn) * time.Second)
	}
	return renewed, nil
}

func (e *Exchanger) facebookToken(ctx context.Context, q url.Values) (*facebookTokenResponse, error) {
	endpoint := facebookGraphURL + "/oauth/access_token?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var parsed facebookTokenResponse
	if err := e.doJSON(req, &parsed); err != nil {
		return nil, fmt.Errorf("facebook token: %w", err)
	}
	if parsed.AccessToken == "" {
		return nil, fmt.Errorf("facebook token: empty access token")
	}
	return &parsed, nil
}

// instagramAccountID resolves the business account behind the user's first
// page, which is what the Graph publishing endpoints address.
func (e *Exchanger) instagramAccountID(ctx context.Context, token string) (string, error) {
	endpoint := fmt.Sprintf("%s/me/accounts?fields=instagram_business_account&access_token=%s",
		facebookGraphURL, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Data []struct {
			InstagramBusinessAccount struct {
				ID string `json:"id"`
			} `json:"instagram_business_account"`
		} `json:"data"`
	}
	if err := e.doJSON(req, &parsed); err != nil {
		return "", fmt.Errorf("resolve instagram account: %w", err)
	}

	for _, page := range parsed.Data {
		if page.InstagramBusinessAccount.ID != "" {
			return page.InstagramBusinessAccount.ID, nil
		}
	}
	return "", fmt.Errorf("no instagram business account linked to this user")
}

func (e *Exchanger) doJSON(req *http.Request, out any) error {
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		if len(data) > 200 {
			data = data[:200]
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, data)
	}
	return json.Unmarshal(data, out)
}

func credentialFromOauth2(token *oauth2.Token, scopes []string) *models.Credential {
	return &models.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Scopes:       scopes,
		TokenExpiry:  token.Expiry,
	}
}
