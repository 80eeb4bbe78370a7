package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/harpua555/OpenFilamentSensor/project"
)

type statusSource interface {
	Fetch(ctx context.Context) (project.SensorStatus, error)
	Post(ctx context.Context, path string) error
}

type statusClient struct {
	base string
	http *http.Client
}

func newStatusClient(base string) *statusClient {
	return &statusClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 3 * time.Second},
	}
}

func (c *statusClient) Fetch(ctx context.Context) (project.SensorStatus, error) {
	var st project.SensorStatus
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/sensor_status", nil)
	if err != nil {
		return st, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("sensor_status: %s", resp.Status)
	}
	err = json.NewDecoder(resp.Body).Decode(&st)
	return st, err
}

func (c *statusClient) Post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", path, resp.Status)
	}
	return nil
}
