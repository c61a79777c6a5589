// Package registry provides a client for the fleet registry, used for
// best-effort service registration at startup. The ledger never mutates
// registry data beyond announcing itself.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"nautilus/api_compliance/pkg/logging"
)

// Client represents a fleet registry API client
type Client struct {
	http   *resty.Client
	logger logging.Logger
}

// Config represents the configuration for the registry client
type Config struct {
	BaseURL      string
	ServiceToken string
	Timeout      time.Duration
	Logger       logging.Logger
}

// BootstrapServiceRequest announces a running service instance.
type BootstrapServiceRequest struct {
	Type           string `json:"type"`
	Version        string `json:"version"`
	Protocol       string `json:"protocol"`
	HealthEndpoint string `json:"health_endpoint,omitempty"`
	Port           int    `json:"port"`
}

// BootstrapServiceResponse is the registry's acknowledgement.
type BootstrapServiceResponse struct {
	ServiceID string `json:"service_id"`
	Status    string `json:"status"`
}

// NewClient creates a new fleet registry client
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	http := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Content-Type", "application/json")

	if config.ServiceToken != "" {
		http.SetHeader("Authorization", "Bearer "+config.ServiceToken)
	}

	return &Client{
		http:   http,
		logger: config.Logger,
	}
}

// BootstrapService registers this service instance with the fleet registry.
func (c *Client) BootstrapService(ctx context.Context, req *BootstrapServiceRequest) (*BootstrapServiceResponse, error) {
	var out BootstrapServiceResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/api/registry/services/bootstrap")
	if err != nil {
		return nil, fmt.Errorf("failed to call fleet registry: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("fleet registry returned %d", resp.StatusCode())
	}

	return &out, nil
}
