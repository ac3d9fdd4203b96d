package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/veymont/hotbackup/internal/config"
)

// client is a minimal HTTP client for the daemon's admin API.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(addr string) *client {
	return &client{
		baseURL: "http://" + addr,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func newBackupCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "backup <destination>",
		Short: "Start a hot backup into the given destination directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var attempt json.RawMessage
			err := newClient(addr).do(http.MethodPost, "/api/v1/backups",
				map[string]string{"destination": args[0]}, &attempt)
			if err != nil {
				return err
			}
			return printJSON(attempt)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", config.DefaultListenAddr, "daemon admin API address")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running backup's progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc json.RawMessage
			if err := newClient(addr).do(http.MethodGet, "/api/v1/backups/status", nil, &doc); err != nil {
				return err
			}
			return printJSON(doc)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", config.DefaultListenAddr, "daemon admin API address")
	return cmd
}

func newThrottleCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "throttle <bytes-per-second>",
		Short: "Cap the copy rate of any in-progress backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var bps int64
			if _, err := fmt.Sscanf(args[0], "%d", &bps); err != nil {
				return fmt.Errorf("invalid rate %q", args[0])
			}
			err := newClient(addr).do(http.MethodPut, "/api/v1/backups/throttle",
				map[string]int64{"bytes_per_second": bps}, nil)
			if err != nil {
				return err
			}
			fmt.Printf("throttle set to %d bytes/s\n", bps)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", config.DefaultListenAddr, "daemon admin API address")
	return cmd
}
