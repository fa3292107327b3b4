package control

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// the host is ignored because every connection is dialed on the socket
const dockerBaseURL = "http://docker"

// DockerClient talks to the Docker Engine API over its unix socket.
type DockerClient struct {
	logger *slog.Logger
	client *resty.Client
}

func NewDockerClient(logger *slog.Logger, socketPath string) *DockerClient {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var dialer net.Dialer
			return dialer.DialContext(ctx, "unix", socketPath)
		},
	}
	client := resty.New().
		SetTransport(transport).
		SetBaseURL(dockerBaseURL).
		SetTimeout(2 * time.Minute)

	return &DockerClient{
		logger: logger,
		client: client,
	}
}

type dockerError struct {
	Message string `json:"message"`
}

// Restart restarts the container called name and waits until the engine
// reports the result.
func (client *DockerClient) Restart(ctx context.Context, name string) error {
	var apiErr dockerError
	response, err := client.client.R().
		SetContext(ctx).
		SetError(&apiErr).
		Post("/containers/" + url.PathEscape(name) + "/restart")
	if err != nil {
		return fmt.Errorf("POST /containers/%s/restart: %w", name, err)
	}
	if response.IsError() {
		return fmt.Errorf("POST /containers/%s/restart: status %d: %s", name, response.StatusCode(), apiErr.Message)
	}

	client.logger.DebugContext(ctx, "requested a container restart",
		"container", name,
		"status", response.StatusCode(),
	)
	return nil
}
