// Package e2e drives a running reconciler over HTTP with godog scenarios.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cucumber/godog"

	"reconciler/e2e/steps/identify"
)

var scenarioSeq atomic.Int64

// TestContext holds the HTTP client and the last response of one scenario.
type TestContext struct {
	BaseURL    string
	HTTPClient *http.Client

	nonce        string
	lastStatus   int
	lastBody     []byte
	rememberedID int64
}

func NewTestContext(baseURL string) *TestContext {
	return &TestContext{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Reset gives the scenario a fresh nonce so its identifiers never collide
// with rows left by earlier runs.
func (tc *TestContext) Reset() {
	tc.nonce = strconv.FormatInt(time.Now().UnixNano()%1_000_000_000+scenarioSeq.Add(1), 10)
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.rememberedID = 0
}

// Unique replaces {n} with the scenario nonce.
func (tc *TestContext) Unique(s string) string {
	return strings.ReplaceAll(s, "{n}", tc.nonce)
}

func (tc *TestContext) POST(path string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return tc.POSTRaw(path, string(raw))
}

func (tc *TestContext) POSTRaw(path, body string) error {
	return tc.do(http.MethodPost, path, strings.NewReader(body))
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

func (tc *TestContext) do(method, path string, body io.Reader) error {
	req, err := http.NewRequestWithContext(context.Background(), method, tc.BaseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) StatusCode() int { return tc.lastStatus }

func (tc *TestContext) Body() []byte { return tc.lastBody }

func (tc *TestContext) Remember(id int64) { tc.rememberedID = id }

func (tc *TestContext) Remembered() int64 { return tc.rememberedID }

// RegisterSteps registers the generic request steps and the identify steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		tc.Reset()
		return ctx, nil
	})

	ctx.Step(`^I GET "([^"]*)"$`, func(path string) error {
		return tc.GET(tc.Unique(path))
	})
	ctx.Step(`^I POST the raw body "((?:[^"\\]|\\.)*)" to "([^"]*)"$`, func(body, path string) error {
		return tc.POSTRaw(path, strings.ReplaceAll(body, `\"`, `"`))
	})
	ctx.Step(`^the response status should be (\d+)$`, func(want int) error {
		if tc.lastStatus != want {
			return fmt.Errorf("expected status %d, got %d: %s", want, tc.lastStatus, tc.lastBody)
		}
		return nil
	})
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, func(field, want string) error {
		var body map[string]any
		if err := json.Unmarshal(tc.lastBody, &body); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if got := fmt.Sprint(body[field]); got != want {
			return fmt.Errorf("expected %s=%q, got %q", field, want, got)
		}
		return nil
	})

	identify.RegisterSteps(ctx, tc)
}
