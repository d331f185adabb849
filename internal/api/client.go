// Package api issues requests against the game platform HTTP API and returns
// typed results decoded from its keypair, dump and JSON formats.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joltkit/jolt/internal/config"
	"github.com/joltkit/jolt/internal/logging"
	"github.com/joltkit/jolt/internal/transport"
	"github.com/joltkit/jolt/internal/wire"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Endpoint paths relative to the API base URL.
const (
	PathSessionOpen  = "/sessions/open/"
	PathSessionPing  = "/sessions/ping/"
	PathSessionClose = "/sessions/close/"

	pathUsersFetch  = "/users/"
	pathUsersAuth   = "/users/auth/"
	pathScoresFetch = "/scores/"
	pathScoresAdd   = "/scores/add/"
	pathScoreTables = "/scores/tables/"
	pathDataFetch   = "/data-store/"
	pathDataSet     = "/data-store/set/"
	pathDataUpdate  = "/data-store/update/"
	pathDataRemove  = "/data-store/remove/"
	pathDataKeys    = "/data-store/get-keys/"
	pathTrophies    = "/trophies/"
	pathTrophyAward = "/trophies/add-achieved/"
)

// Query parameter names shared by several endpoints.
const (
	ParamGameID    = "game_id"
	ParamUsername  = "username"
	ParamUserToken = "user_token"
	ParamStatus    = "status"
	ParamSignature = "signature"
	paramFormat    = "format"
)

// Client builds signed request URLs and decodes the platform responses.
type Client struct {
	fetcher  transport.Fetcher
	settings *config.Settings
	baseURL  string
	tracer   trace.Tracer
	logger   *log.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTracer overrides the tracer used for api.call spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client issuing requests through fetcher using the
// credentials held by settings.
func NewClient(fetcher transport.Fetcher, settings *config.Settings, options ...Option) (*Client, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher must not be nil")
	}
	if settings == nil {
		return nil, errors.New("settings must not be nil")
	}

	client := &Client{
		fetcher:  fetcher,
		settings: settings,
		baseURL:  config.DefaultBaseURL,
		tracer:   otel.Tracer("jolt/api"),
		logger:   logging.Discard(),
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(client)
	}
	return client, nil
}

// Settings returns the credential store used by the client.
func (c *Client) Settings() *config.Settings {
	return c.settings
}

// URL builds the full request URL for endpoint. game_id and signature are
// added from the settings unless params already carry them.
func (c *Client) URL(endpoint string, params url.Values) (string, error) {
	query := cloneValues(params)
	if query.Get(ParamGameID) == "" {
		gameID, err := c.settings.GameID()
		if err != nil {
			return "", err
		}
		query.Set(ParamGameID, gameID)
	}
	if query.Get(ParamSignature) == "" {
		signature, err := c.settings.Signature()
		if err != nil {
			return "", err
		}
		query.Set(ParamSignature, signature)
	}

	return c.baseURL + "/" + strings.TrimLeft(endpoint, "/") + "?" + query.Encode(), nil
}

// Call issues a GET for endpoint and returns the raw response body.
func (c *Client) Call(ctx context.Context, endpoint string, params url.Values) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := c.tracer.Start(ctx, "api.call", trace.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
	defer span.End()

	requestURL, err := c.URL(endpoint, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("build %s request: %w", endpoint, err)
	}

	c.logger.Debug("api request", "endpoint", endpoint, "url", transport.Redact(requestURL))
	body, err := c.fetcher.Fetch(ctx, requestURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("call %s: %w", endpoint, err)
	}
	span.SetAttributes(attribute.Int("response_bytes", len(body)))
	span.SetStatus(codes.Ok, "response received")
	return body, nil
}

// Keypair calls endpoint and decodes the keypair response, requiring success.
func (c *Client) Keypair(ctx context.Context, endpoint string, params url.Values) (wire.Response, error) {
	body, err := c.Call(ctx, endpoint, params)
	if err != nil {
		return wire.Response{}, err
	}
	response, err := wire.DecodeKeypair(body)
	if err != nil {
		return wire.Response{}, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return response, nil
}

// KeypairRecords calls endpoint and splits a list response into records,
// starting a new record whenever firstKey appears again.
func (c *Client) KeypairRecords(ctx context.Context, endpoint string, params url.Values, firstKey string) ([]wire.Record, error) {
	body, err := c.Call(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	_, records, err := wire.DecodeKeypairRecords(body, firstKey)
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return records, nil
}

// Dump calls endpoint with format=dump and returns the payload.
func (c *Client) Dump(ctx context.Context, endpoint string, params url.Values) (string, error) {
	query := cloneValues(params)
	query.Set(paramFormat, "dump")
	body, err := c.Call(ctx, endpoint, query)
	if err != nil {
		return "", err
	}
	payload, err := wire.DecodeDump(body)
	if err != nil {
		return "", fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return payload, nil
}

// userParams returns the configured username and user token as query values.
func (c *Client) userParams() (url.Values, error) {
	username, err := c.settings.Username()
	if err != nil {
		return nil, err
	}
	userToken, err := c.settings.UserToken()
	if err != nil {
		return nil, err
	}
	return url.Values{
		ParamUsername:  []string{username},
		ParamUserToken: []string{userToken},
	}, nil
}

// scopedParams returns an empty query, or the user credentials when userScoped.
func (c *Client) scopedParams(userScoped bool) (url.Values, error) {
	if !userScoped {
		return url.Values{}, nil
	}
	return c.userParams()
}

func cloneValues(params url.Values) url.Values {
	out := url.Values{}
	for key, values := range params {
		out[key] = append([]string(nil), values...)
	}
	return out
}
