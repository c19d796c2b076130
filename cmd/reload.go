package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	reloadVersion string
	reloadAddr    string
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Ask a running server to reload its model",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := reloadAddr
		if addr == "" {
			addr = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
		}

		payload, err := json.Marshal(map[string]string{"version": reloadVersion})
		if err != nil {
			return eris.Wrap(err, "marshal reload request")
		}

		client := &http.Client{Timeout: 10 * time.Second}
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
			addr+"/api/v1/reload-model", bytes.NewReader(payload))
		if err != nil {
			return eris.Wrap(err, "create reload request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return eris.Wrap(err, "reload request")
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return eris.Errorf("reload failed: status %d: %s", resp.StatusCode, string(body))
		}

		var out struct {
			ModelVersion string `json:"model_version"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return eris.Wrap(err, "unmarshal reload response")
		}

		zap.L().Info("model reloaded", zap.String("model_version", out.ModelVersion))
		return nil
	},
}

func init() {
	reloadCmd.Flags().StringVar(&reloadVersion, "version", "", "model version to load (default newest)")
	reloadCmd.Flags().StringVar(&reloadAddr, "addr", "", "server base URL (default http://localhost:<port>)")
	rootCmd.AddCommand(reloadCmd)
}
