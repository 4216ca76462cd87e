package nexia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// forgottenCredentialsPath is the redirect target the cloud uses when the
// account credentials are wrong, as opposed to a plain session expiry.
const forgottenCredentialsPath = "/account/forgotten_credentials"

// maxErrorBodyBytes bounds how much of an error response is retained.
const maxErrorBodyBytes = 2048

// session owns the authenticated transport: the token pair, the login
// attempt budget, and the transparent re-login on session expiry.
type session struct {
	http     *http.Client
	baseURL  string
	username string
	password string
	store    TokenStore
	logger   Logger

	mu           sync.Mutex
	houseID      int64
	mobileID     int64
	apiKey       string
	attemptsLeft int
	storeChecked bool

	// generation increments on every successful login. A request that
	// hits a 302 only re-logs-in if the generation is unchanged since it
	// read its token, so concurrent expiries trigger one login, not one
	// per request.
	generation uint64
}

// envelope is the common response wrapper used by the mobile API.
type envelope struct {
	Success *bool           `json:"success"`
	Error   string          `json:"error"`
	Result  json.RawMessage `json:"result"`
}

// linksEnvelope decodes the _links.child[0].data shape used by both the
// session endpoint (house discovery) and the houses endpoint (snapshot).
type linksEnvelope struct {
	Links struct {
		Child []struct {
			Data struct {
				ID    int64            `json:"id"`
				Items []map[string]any `json:"items"`
			} `json:"data"`
		} `json:"child"`
	} `json:"_links"`
}

// get performs an authenticated GET and returns the decoded result field.
func (s *session) get(ctx context.Context, path string) (json.RawMessage, error) {
	return s.do(ctx, http.MethodGet, path, nil)
}

// post performs an authenticated POST with a JSON payload and returns the
// decoded result field.
func (s *session) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	return s.do(ctx, http.MethodPost, path, payload)
}

// do performs an authenticated request with a single transparent re-login.
//
// A 302 response means the session expired: the client re-logs-in (unless
// another request already did) and retries exactly once. A second 302, or
// any other non-2xx status, surfaces as a *ResponseError.
func (s *session) do(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	if err := s.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}

	gen := s.currentGeneration()
	resp, body, err := s.roundTrip(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusFound {
		if err := s.relogin(ctx, gen); err != nil {
			return nil, err
		}
		resp, body, err = s.roundTrip(ctx, method, path, payload)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, responseError(method, resp, body)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("nexia: decoding %s %s response: %w", method, path, err)
	}
	return env.Result, nil
}

// roundTrip performs one HTTP exchange with auth headers attached.
func (s *session) roundTrip(ctx context.Context, method, path string, payload any) (*http.Response, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("nexia: encoding %s %s payload: %w", method, path, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("nexia: building %s %s request: %w", method, path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	mobileID, apiKey := s.currentToken()
	if mobileID != 0 {
		req.Header.Set("X-MobileId", strconv.FormatInt(mobileID, 10))
		req.Header.Set("X-ApiKey", apiKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("nexia: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("nexia: reading %s %s response: %w", method, path, err)
	}
	return resp, body, nil
}

// ensureAuthenticated makes sure a token pair is present, consulting the
// TokenStore first and logging in only if needed.
func (s *session) ensureAuthenticated(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mobileID != 0 {
		return nil
	}

	if s.store != nil && !s.storeChecked {
		s.storeChecked = true
		mobileID, apiKey, err := s.store.Load(ctx)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("failed to load stored session token", "error", err)
			}
		} else if mobileID != 0 {
			s.mobileID = mobileID
			s.apiKey = apiKey
			s.generation++
			if s.houseID != 0 {
				if s.logger != nil {
					s.logger.Debug("reusing stored session token", "mobile_id", mobileID)
				}
				return nil
			}
			if err := s.discoverHouseLocked(ctx); err == nil {
				if s.logger != nil {
					s.logger.Debug("reusing stored session token", "mobile_id", mobileID)
				}
				return nil
			}
			// Stored token no longer valid; drop it so the next start
			// does not retry it, then fall through to a fresh login.
			s.mobileID = 0
			s.apiKey = ""
			if clearErr := s.store.Clear(ctx); clearErr != nil {
				if s.logger != nil {
					s.logger.Warn("failed to clear stale session token", "error", clearErr)
				}
			}
		}
	}

	return s.loginLocked(ctx)
}

// relogin performs a login unless another request already replaced the
// token since generation gen was observed.
func (s *session) relogin(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen {
		// Another request re-logged-in while this one was in flight.
		return nil
	}
	return s.loginLocked(ctx)
}

// loginLocked performs the credential exchange. Caller must hold mu.
func (s *session) loginLocked(ctx context.Context) error {
	if s.attemptsLeft <= 0 {
		return ErrLoginAttemptsExhausted
	}

	payload := map[string]string{
		"login":    s.username,
		"password": s.password,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("nexia: encoding login payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/accounts/sign_in", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("nexia: building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("nexia: login: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("nexia: reading login response: %w", err)
	}

	if resp.StatusCode == http.StatusFound {
		s.attemptsLeft--
		if strings.Contains(resp.Header.Get("Location"), forgottenCredentialsPath) {
			return fmt.Errorf("%w: redirected to forgotten credentials page", ErrInvalidCredentials)
		}
		return responseError(http.MethodPost, resp, body)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.attemptsLeft--
		return responseError(http.MethodPost, resp, body)
	}

	var env struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
		Result  struct {
			MobileID int64  `json:"mobile_id"`
			APIKey   string `json:"api_key"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("nexia: decoding login response: %w", err)
	}

	if env.Success == nil || !*env.Success {
		s.attemptsLeft--
		errText := env.Error
		if errText == "" {
			errText = "unknown error"
		}
		return fmt.Errorf("%w: %s", ErrInvalidCredentials, errText)
	}

	s.mobileID = env.Result.MobileID
	s.apiKey = env.Result.APIKey
	s.generation++

	if s.logger != nil {
		s.logger.Debug("logged in", "mobile_id", s.mobileID, "attempts_left", s.attemptsLeft)
	}

	if s.store != nil {
		if err := s.store.Save(ctx, s.mobileID, s.apiKey); err != nil {
			// Persistence is best effort; the session works without it.
			if s.logger != nil {
				s.logger.Warn("failed to persist session token", "error", err)
			}
		}
	}

	if s.houseID == 0 {
		if err := s.discoverHouseLocked(ctx); err != nil {
			return err
		}
	}
	return nil
}

// discoverHouseLocked resolves the house id from the authenticated session.
// Caller must hold mu with a valid token present.
func (s *session) discoverHouseLocked(ctx context.Context) error {
	resp, body, err := s.roundTripLocked(ctx, http.MethodPost, "/session", map[string]any{})
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(http.MethodPost, resp, body)
	}

	var env struct {
		Result linksEnvelope `json:"result"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("nexia: decoding session response: %w", err)
	}
	if len(env.Result.Links.Child) == 0 {
		return fmt.Errorf("nexia: session response contains no house")
	}

	s.houseID = env.Result.Links.Child[0].Data.ID
	if s.logger != nil {
		s.logger.Debug("discovered house", "house_id", s.houseID)
	}
	return nil
}

// roundTripLocked is roundTrip for callers already holding mu; it reads the
// token fields directly instead of taking the lock again.
func (s *session) roundTripLocked(ctx context.Context, method, path string, payload any) (*http.Response, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("nexia: encoding %s %s payload: %w", method, path, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("nexia: building %s %s request: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-MobileId", strconv.FormatInt(s.mobileID, 10))
	req.Header.Set("X-ApiKey", s.apiKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("nexia: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("nexia: reading %s %s response: %w", method, path, err)
	}
	return resp, body, nil
}

// currentToken returns the token pair under the lock.
func (s *session) currentToken() (int64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mobileID, s.apiKey
}

// currentGeneration returns the login generation under the lock.
func (s *session) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// currentHouseID returns the configured or discovered house id.
func (s *session) currentHouseID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.houseID
}

// responseError builds a *ResponseError with a bounded body excerpt.
func responseError(method string, resp *http.Response, body []byte) error {
	excerpt := body
	if len(excerpt) > maxErrorBodyBytes {
		excerpt = excerpt[:maxErrorBodyBytes]
	}
	return &ResponseError{
		Method:     method,
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(excerpt),
	}
}
