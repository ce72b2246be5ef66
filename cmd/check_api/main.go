// check_api requests a few read-only endpoints and prints what came back, to
// tell a dead API apart from a client problem.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"hospital-appointments/config"
)

var defaultPaths = []string{"/api/hospitals", "/api/hospital/1/doctors", "/"}

func main() {
	cfg, err := config.Load(config.New())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	paths := defaultPaths
	if len(os.Args) > 1 {
		paths = os.Args[1:]
	}

	client := &http.Client{Timeout: 10 * time.Second}
	failures := 0
	for _, p := range paths {
		fmt.Printf("\nRequesting %s%s\n", cfg.APIBaseURL, p)
		status, ctype, body, err := fetch(client, cfg.APIBaseURL+p)
		if err != nil {
			fmt.Printf("Error requesting %s - %v\n", p, err)
			failures++
			continue
		}
		fmt.Println("Status:", status)
		fmt.Println("Content-Type:", ctype)
		fmt.Println("Body (first 800 chars):")
		fmt.Println(truncateString(body, 800))
		if status >= 500 {
			failures++
		}
	}

	fmt.Printf("\nDone. %d of %d request(s) failed.\n", failures, len(paths))
	if failures > 0 {
		os.Exit(1)
	}
}

func fetch(client *http.Client, url string) (int, string, string, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return 0, "", "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return resp.StatusCode, "", "", fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, resp.Header.Get("Content-Type"), strings.ToValidUTF8(string(body), "?"), nil
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}
