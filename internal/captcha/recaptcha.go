package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultVerifyURL is Google's siteverify endpoint.
const DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

var ErrMissingToken = errors.New("recaptcha token missing")

// RecaptchaResult is the outcome of a token verification. Any transport or
// decoding failure yields Success=false with Err set.
type RecaptchaResult struct {
	Success     bool     `json:"valid"`
	Score       *float64 `json:"score,omitempty"`
	Action      string   `json:"action,omitempty"`
	ChallengeTS string   `json:"challenge_ts,omitempty"`
	Hostname    string   `json:"hostname,omitempty"`
	ErrorCodes  []string `json:"error_codes"`
	ActionValid bool     `json:"action_valid"`
	ScoreValid  bool     `json:"score_valid"`
	Err         error    `json:"-"`
}

type siteverifyResponse struct {
	Success     bool     `json:"success"`
	Score       *float64 `json:"score"`
	Action      string   `json:"action"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	ErrorCodes  []string `json:"error-codes"`
}

// RecaptchaClient verifies tokens for one site key pair.
type RecaptchaClient struct {
	SiteKey    string
	secret     string
	verifyURL  string
	httpClient *http.Client
}

func NewRecaptchaClient(siteKey, secret, verifyURL string, timeout time.Duration) *RecaptchaClient {
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RecaptchaClient{
		SiteKey:    siteKey,
		secret:     secret,
		verifyURL:  verifyURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// VerifyV2 checks a checkbox/invisible widget response.
func (c *RecaptchaClient) VerifyV2(ctx context.Context, token, remoteIP string) RecaptchaResult {
	resp, err := c.siteverify(ctx, token, remoteIP)
	if err != nil {
		return RecaptchaResult{Err: err, ErrorCodes: []string{}}
	}

	return RecaptchaResult{
		Success:     resp.Success,
		ChallengeTS: resp.ChallengeTS,
		Hostname:    resp.Hostname,
		ErrorCodes:  nonNil(resp.ErrorCodes),
		ActionValid: true,
		ScoreValid:  true,
	}
}

// VerifyV3 checks a score-based token. The token passes only when Google
// accepts it, the action matches expectedAction (when set), and the score
// reaches minScore.
func (c *RecaptchaClient) VerifyV3(ctx context.Context, token, expectedAction string, minScore float64, remoteIP string) RecaptchaResult {
	resp, err := c.siteverify(ctx, token, remoteIP)
	if err != nil {
		return RecaptchaResult{Err: err, ErrorCodes: []string{}}
	}

	score := 0.0
	if resp.Score != nil {
		score = *resp.Score
	}
	actionValid := expectedAction == "" || resp.Action == expectedAction
	scoreValid := score >= minScore

	return RecaptchaResult{
		Success:     resp.Success && actionValid && scoreValid,
		Score:       &score,
		Action:      resp.Action,
		ChallengeTS: resp.ChallengeTS,
		Hostname:    resp.Hostname,
		ErrorCodes:  nonNil(resp.ErrorCodes),
		ActionValid: actionValid,
		ScoreValid:  scoreValid,
	}
}

func (c *RecaptchaClient) siteverify(ctx context.Context, token, remoteIP string) (*siteverifyResponse, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}

	form := url.Values{}
	form.Set("secret", c.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("siteverify request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("siteverify returned status %d", res.StatusCode)
	}

	var out siteverifyResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode siteverify response: %w", err)
	}
	return &out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
