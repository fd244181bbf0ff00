package phonepe

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/estore-backend/pkg/config"
	"github.com/angelmondragon/estore-backend/pkg/httpclient"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: http.Header{}}
}

func testConfig() config.PhonePeConfig {
	return config.PhonePeConfig{
		BaseURL:       "http://phonepe.test/pg",
		AuthURL:       "http://phonepe.test/oauth",
		ClientID:      "client",
		ClientSecret:  "secret",
		ClientVersion: "1",
	}
}

func transport(rt roundTripFunc) *httpclient.Client {
	return httpclient.New("phonepe", config.GatewayConfig{Timeout: time.Second, RetryBackoff: time.Millisecond}, httpclient.WithHTTPClient(&http.Client{Transport: rt}))
}

func TestTokenProviderCachesUntilExpiry(t *testing.T) {
	var mu sync.Mutex
	fetches := 0
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		fetches++
		mu.Unlock()
		body, _ := io.ReadAll(req.Body)
		assert.Contains(t, string(body), "grant_type=client_credentials")
		assert.Equal(t, "application/x-www-form-urlencoded", req.Header.Get("Content-Type"))
		return jsonResponse(http.StatusOK, `{"access_token":"tok-1","expires_in":3600}`), nil
	})
	provider, err := NewOAuthTokenProvider(testConfig(), transport(rt))
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	provider.now = func() time.Time { return now }

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := provider.Token(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "tok-1", tok)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fetches)

	now = now.Add(2 * time.Hour)
	_, err = provider.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fetches)

	provider.Invalidate()
	_, err = provider.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, fetches)
}

func TestPaySendsCheckoutRequest(t *testing.T) {
	var captured map[string]any
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/oauth" {
			return jsonResponse(http.StatusOK, `{"access_token":"tok","expires_in":3600}`), nil
		}
		assert.Equal(t, "/pg/checkout/v2/pay", req.URL.Path)
		assert.Equal(t, "O-Bearer tok", req.Header.Get("Authorization"))
		body, _ := io.ReadAll(req.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		return jsonResponse(http.StatusOK, `{"orderId":"OMO123","state":"PENDING","redirectUrl":"https://pay.test/r"}`), nil
	})
	tr := transport(rt)
	tokens, err := NewOAuthTokenProvider(testConfig(), tr)
	require.NoError(t, err)
	client, err := NewClient(testConfig(), tr, tokens)
	require.NoError(t, err)

	resp, err := client.Pay(context.Background(), PayRequest{
		MerchantOrderID: "PP-1",
		AmountPaise:     4550,
		RedirectURL:     "https://shop.test/done",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.test/r", resp.RedirectURL)
	assert.Equal(t, "PP-1", captured["merchantOrderId"])
	assert.EqualValues(t, 4550, captured["amount"])
}

func TestOrderStatusInvalidatesTokenOnUnauthorized(t *testing.T) {
	tokenCalls := 0
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/oauth" {
			tokenCalls++
			return jsonResponse(http.StatusOK, `{"access_token":"tok","expires_in":3600}`), nil
		}
		return jsonResponse(http.StatusUnauthorized, `{"code":"UNAUTHORIZED"}`), nil
	})
	tr := transport(rt)
	tokens, err := NewOAuthTokenProvider(testConfig(), tr)
	require.NoError(t, err)
	client, err := NewClient(testConfig(), tr, tokens)
	require.NoError(t, err)

	_, err = client.OrderStatus(context.Background(), "PP-1")
	var statusErr *httpclient.StatusError
	require.ErrorAs(t, err, &statusErr)

	_, _ = client.OrderStatus(context.Background(), "PP-1")
	assert.Equal(t, 2, tokenCalls)
}

func TestOrderStatusParsesState(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/oauth" {
			return jsonResponse(http.StatusOK, `{"access_token":"tok","expires_at":4102444800}`), nil
		}
		assert.Equal(t, "/pg/checkout/v2/order/PP-9/status", req.URL.Path)
		return jsonResponse(http.StatusOK, `{"orderId":"OMO9","merchantOrderId":"PP-9","state":"COMPLETED","amount":100}`), nil
	})
	tr := transport(rt)
	tokens, _ := NewOAuthTokenProvider(testConfig(), tr)
	client, err := NewClient(testConfig(), tr, tokens)
	require.NoError(t, err)

	status, err := client.OrderStatus(context.Background(), "PP-9")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, status.State)
}

func TestVerifyWebhookAuthorization(t *testing.T) {
	header := WebhookAuthorization("merchant", "s3cret")
	assert.Len(t, header, 64)
	assert.True(t, VerifyWebhookAuthorization(header, "merchant", "s3cret"))
	assert.True(t, VerifyWebhookAuthorization("SHA256 "+strings.ToUpper(header), "merchant", "s3cret"))
	assert.False(t, VerifyWebhookAuthorization(header, "merchant", "other"))
	assert.False(t, VerifyWebhookAuthorization("", "merchant", "s3cret"))
	assert.False(t, VerifyWebhookAuthorization(header, "", ""))
}
