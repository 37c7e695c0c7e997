package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	maintenanceServer string
	maintenanceKey    string
)

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance [on|off|status]",
	Short: "Toggle or inspect maintenance mode on a running server",
	Long: `Toggle or inspect maintenance mode on a running zeno server through
its admin API.

Requires an admin key accepted by the server (see "zeno hash-key").
The key can also be provided via the ZENO_ADMIN_KEY environment variable.

Examples:
  # Put the server into maintenance mode
  zeno maintenance on --key "$ZENO_ADMIN_KEY"

  # Bring it back
  zeno maintenance off --key "$ZENO_ADMIN_KEY"

  # Check the current state
  zeno maintenance status --key "$ZENO_ADMIN_KEY"`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off", "status"},
	RunE:      runMaintenance,
}

func init() {
	maintenanceCmd.Flags().StringVar(&maintenanceServer, "server", "http://127.0.0.1:8080", "Base URL of the running server")
	maintenanceCmd.Flags().StringVar(&maintenanceKey, "key", "", "Admin API key (default: $ZENO_ADMIN_KEY)")
	rootCmd.AddCommand(maintenanceCmd)
}

func runMaintenance(cmd *cobra.Command, args []string) error {
	key := maintenanceKey
	if key == "" {
		key = os.Getenv("ZENO_ADMIN_KEY")
	}
	if key == "" {
		return fmt.Errorf("no admin key provided (use --key or ZENO_ADMIN_KEY)")
	}

	url := maintenanceServer + "/admin/api/maintenance"

	var req *http.Request
	var err error
	switch args[0] {
	case "status":
		req, err = http.NewRequest(http.MethodGet, url, nil)
	case "on", "off":
		body, _ := json.Marshal(map[string]bool{"enabled": args[0] == "on"})
		req, err = http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	default:
		return fmt.Errorf("unknown argument %q (want on, off, or status)", args[0])
	}
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+key)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w\nIs the server running at %s?", err, maintenanceServer)
	}
	defer resp.Body.Close()

	var out struct {
		Enabled  bool   `json:"enabled"`
		Previous bool   `json:"previous"`
		Error    string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("unexpected response (status %d): %w", resp.StatusCode, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return fmt.Errorf("admin key rejected by server")
	default:
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, out.Error)
	}

	if args[0] == "status" {
		fmt.Printf("maintenance: %s\n", onOff(out.Enabled))
		return nil
	}
	fmt.Printf("maintenance: %s (was %s)\n", onOff(out.Enabled), onOff(out.Previous))
	return nil
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
