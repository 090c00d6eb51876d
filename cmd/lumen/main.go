package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"lumen/internal/domain"
	"lumen/internal/poller"
)

var (
	serverURL string
	userID    string
)

func main() {
	root := &cobra.Command{
		Use:           "lumen",
		Short:         "Submit and watch website performance audits",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", envDefault("LUMEN_SERVER", "http://localhost:8080"), "lumen server base URL")
	root.PersistentFlags().StringVar(&userID, "user", os.Getenv("LUMEN_USER"), "user id sent as X-User-ID")

	root.AddCommand(submitCmd(), statusCmd(), watchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func submitCmd() *cobra.Command {
	var device, network string
	var wait bool
	cmd := &cobra.Command{
		Use:   "submit <url>",
		Short: "Submit a new performance test",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			testID, err := submit(args[0], device, network)
			if err != nil {
				return err
			}
			fmt.Printf("submitted test %d\n", testID)
			if !wait {
				return nil
			}
			return watch(cmd, testID)
		},
	}
	cmd.Flags().StringVar(&device, "device", "desktop", "device form factor: mobile or desktop")
	cmd.Flags().StringVar(&network, "network", "none", "throttling profile: none, 4g, 3g, slow-3g")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the test finishes")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <test-id>",
		Short: "Show a test's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid test id %q", args[0])
			}
			client := &poller.Client{BaseURL: serverURL}
			test, err := client.GetByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			printTest(test)
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <test-id>",
		Short: "Poll a test until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid test id %q", args[0])
			}
			return watch(cmd, id)
		},
	}
	return cmd
}

func watch(cmd *cobra.Command, testID int64) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	p := poller.New(&poller.Client{BaseURL: serverURL}, 2*time.Second, 300*time.Second, logger)

	test, err := p.Wait(cmd.Context(), testID)
	if errors.Is(err, poller.ErrPollTimeout) {
		fmt.Printf("test %d is still %s; gave up waiting (it may finish later)\n", testID, test.Status)
		return nil
	}
	if err != nil {
		return err
	}
	printTest(test)
	return nil
}

func submit(url, device, network string) (int64, error) {
	body, err := json.Marshal(map[string]string{
		"url":     url,
		"device":  device,
		"network": network,
	})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequest(http.MethodPost, serverURL+"/api/tests/submit", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	var out struct {
		Success bool   `json:"success"`
		TestID  int64  `json:"testId"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("server returned %d: unreadable body", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || !out.Success {
		return 0, fmt.Errorf("submission failed (%d): %s", resp.StatusCode, out.Message)
	}
	return out.TestID, nil
}

func printTest(t domain.Test) {
	fmt.Printf("test %d: %s\n", t.ID, t.Status)
	if t.PerformanceScore != nil {
		fmt.Printf("  performance score: %d\n", *t.PerformanceScore)
	}
	printMetric("fcp", t.FCP, "ms")
	printMetric("lcp", t.LCP, "ms")
	printMetric("tbt", t.TBT, "ms")
	printMetric("cls", t.CLS, "")
	if t.Error != "" {
		fmt.Printf("  error: %s\n", t.Error)
	}
}

func printMetric(name string, v *float64, unit string) {
	if v == nil {
		return
	}
	fmt.Printf("  %s: %g%s\n", name, *v, unit)
}
