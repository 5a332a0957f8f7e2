package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tabsync/internal/config"
	"tabsync/internal/orders"
	"tabsync/internal/outbox"
)

// errDaemonUnreachable marks connection-level failures so callers can fall
// back to direct database access.
var errDaemonUnreachable = errors.New("daemon unreachable")

type commandContext struct {
	apiFlag    *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	httpClient *http.Client
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) apiBase() string {
	if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
		return strings.TrimSpace(*c.apiFlag)
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.Paths.APIBind
	}
	return "127.0.0.1:7610"
}

func (c *commandContext) apiURL(path string) string {
	return fmt.Sprintf("http://%s%s", c.apiBase(), path)
}

// getJSON fetches path from the daemon API and decodes the response into out.
// Connection failures are reported as errDaemonUnreachable.
func (c *commandContext) getJSON(cmd *cobra.Command, path string, out any) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, c.apiURL(path), nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

// postJSON posts body (may be nil) to path and decodes the response into out.
func (c *commandContext) postJSON(cmd *cobra.Command, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, c.apiURL(path), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.doJSON(req, out)
}

func (c *commandContext) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wrapDialError(err, c.apiBase())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func wrapDialError(err error, address string) error {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %s refused the connection; start the daemon with `tabsyncd`", errDaemonUnreachable, address)
	case errors.Is(err, syscall.ENOENT):
		return fmt.Errorf("%w: %s", errDaemonUnreachable, address)
	default:
		return fmt.Errorf("%w: %v", errDaemonUnreachable, err)
	}
}

// withOutbox opens the outbox database directly for commands that work
// without a running daemon.
func (c *commandContext) withOutbox(fn func(*outbox.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := outbox.Open(cfg)
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer store.Close()
	return fn(store)
}

// withStores opens both databases directly for offline conflict resolution.
func (c *commandContext) withStores(fn func(*outbox.Store, *orders.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	queue, err := outbox.Open(cfg)
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer queue.Close()
	ordersStore, err := orders.Open(cfg)
	if err != nil {
		return fmt.Errorf("open orders: %w", err)
	}
	defer ordersStore.Close()
	return fn(queue, ordersStore)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
