// Package csm is a small client for the CSM.ai asset service.
package csm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"blender-mcp-bridge/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	EndpointSearch   = "vector_search"
	EndpointUserData = "user_data"
	EndpointSession  = "session"
)

const developerSettings = "Please get a new API key from the CSM.ai developer settings: https://3d.csm.ai/dashboard/profile/developer-settings"

// maxDetails bounds the response body excerpt kept on an APIError.
const maxDetails = 2048

// Observer is notified once per outbound request.
type Observer interface {
	ObserveCSMRequest(endpoint, status string)
}

// Client issues authenticated requests to the asset service.
// Every request waits on a shared token bucket first.
type Client struct {
	baseURL  string
	platform string
	http     *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
	observer Observer
}

type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

func New(cfg config.CSMConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	platform := cfg.Platform
	if platform == "" {
		platform = "web"
	}
	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		platform: platform,
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "csm"))
	return c
}

// Model is one search hit that has a downloadable GLB mesh.
type Model struct {
	ID          string `json:"id"`
	SessionCode string `json:"session_code"`
	ImageURL    string `json:"image_url"`
	MeshURLGLB  string `json:"mesh_url_glb"`
	Status      string `json:"status"`
	Tier        string `json:"tier"`
}

type apiModel struct {
	ID             string `json:"_id"`
	SessionCode    string `json:"session_code"`
	ImageURL       string `json:"image_url"`
	MeshURLGLB     string `json:"mesh_url_glb"`
	Status         string `json:"status"`
	TierAtCreation string `json:"tier_at_creation"`
}

// SearchResult is the filtered vector search response.
// TotalFound and ModelsByTier count every hit, including those without a GLB.
type SearchResult struct {
	Models          []Model        `json:"models"`
	TotalFound      int            `json:"total_found"`
	AvailableModels int            `json:"available_models"`
	TierUsed        string         `json:"tier_used"`
	ModelsByTier    map[string]int `json:"models_by_tier"`
}

// Session is the state of one image-to-3D session.
type Session struct {
	SessionCode   string   `json:"session_code"`
	SessionStatus string   `json:"session_status"`
	PercentDone   *float64 `json:"percent_done"`
	ImageURL      string   `json:"image_url"`
	MeshURLGLB    string   `json:"mesh_url_glb"`
	MeshURLOBJ    string   `json:"mesh_url_obj"`
	MeshURLFBX    string   `json:"mesh_url_fbx"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

type searchRequest struct {
	SearchText string       `json:"search_text"`
	Limit      int          `json:"limit"`
	FilterBody searchFilter `json:"filter_body"`
}

type searchFilter struct {
	Tier string `json:"tier"`
}

// Search runs one vector search and keeps only models with a GLB mesh.
func (c *Client) Search(ctx context.Context, apiKey, text string, limit int, tier string) (*SearchResult, error) {
	body := searchRequest{SearchText: text, Limit: limit, FilterBody: searchFilter{Tier: tier}}
	var resp struct {
		Data []apiModel `json:"data"`
	}
	err := c.do(ctx, EndpointSearch, apiKey, http.MethodPost,
		"/image-to-3d-sessions/session-search/vector-search", body, &resp, nil)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{
		Models:       make([]Model, 0, len(resp.Data)),
		TotalFound:   len(resp.Data),
		TierUsed:     tier,
		ModelsByTier: make(map[string]int),
	}
	for _, m := range resp.Data {
		t := m.TierAtCreation
		if t == "" {
			t = "unknown"
		}
		result.ModelsByTier[t]++
		if m.MeshURLGLB == "" {
			continue
		}
		result.Models = append(result.Models, Model{
			ID:          m.ID,
			SessionCode: m.SessionCode,
			ImageURL:    m.ImageURL,
			MeshURLGLB:  m.MeshURLGLB,
			Status:      m.Status,
			Tier:        m.TierAtCreation,
		})
	}
	result.AvailableModels = len(result.Models)

	c.logger.Info("search completed",
		zap.String("tier", tier),
		zap.Int("total_found", result.TotalFound),
		zap.Int("available", result.AvailableModels),
	)
	return result, nil
}

// UserTier returns the account tier, defaulting to "free" when absent.
func (c *Client) UserTier(ctx context.Context, apiKey string) (string, error) {
	var resp struct {
		Data struct {
			Tier string `json:"tier"`
		} `json:"data"`
	}
	if err := c.do(ctx, EndpointUserData, apiKey, http.MethodGet, "/user/userdata", nil, &resp, nil); err != nil {
		return "", err
	}
	if resp.Data.Tier == "" {
		return "free", nil
	}
	return resp.Data.Tier, nil
}

// SessionDetails fetches one session by code.
func (c *Client) SessionDetails(ctx context.Context, apiKey, code string) (*Session, error) {
	var resp struct {
		Data Session `json:"data"`
	}
	notFound := func() *APIError {
		return &APIError{
			StatusCode:   http.StatusNotFound,
			Message:      "Session not found: " + code,
			Instructions: "Please check if the session code is correct.",
		}
	}
	if err := c.do(ctx, EndpointSession, apiKey, http.MethodGet,
		"/image-to-3d-sessions/"+url.PathEscape(code), nil, &resp, notFound); err != nil {
		return nil, err
	}
	s := resp.Data
	s.SessionCode = code
	return &s, nil
}

func (c *Client) do(ctx context.Context, endpoint, apiKey, method, path string, in, out any, notFound func() *APIError) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("csm %s: %w", endpoint, err)
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("csm %s: encoding request: %w", endpoint, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("csm %s: %w", endpoint, err)
	}
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("x-platform", c.platform)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(endpoint, "transport_error")
		c.logger.Warn("request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return fmt.Errorf("csm %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	c.observe(endpoint, fmt.Sprint(resp.StatusCode))

	c.logger.Debug("response received",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxDetails))
		apiErr := statusError(resp.StatusCode, notFound)
		apiErr.Details = string(excerpt)
		c.logger.Warn("api error",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("details", truncate(apiErr.Details, 200)),
		)
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("csm %s: decoding response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) observe(endpoint, status string) {
	if c.observer != nil {
		c.observer.ObserveCSMRequest(endpoint, status)
	}
}

func statusError(code int, notFound func() *APIError) *APIError {
	switch {
	case code == http.StatusForbidden:
		return &APIError{StatusCode: code, Message: "Authentication failed: Your CSM.ai API key may be invalid.", Instructions: developerSettings}
	case code == http.StatusUnauthorized:
		return &APIError{StatusCode: code, Message: "Authentication failed: Your CSM.ai API key is unauthorized.", Instructions: developerSettings}
	case code == http.StatusNotFound && notFound != nil:
		return notFound()
	default:
		return &APIError{
			StatusCode:   code,
			Message:      "CSM.ai request failed",
			Instructions: fmt.Sprintf("API request failed with status code %d", code),
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
