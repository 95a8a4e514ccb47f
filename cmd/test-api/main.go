// Package main is a smoke test for a running server. It registers a throwaway
// account, logs in, reads and updates the profile, and prints each status code.
// It exits non-zero on the first unexpected response, which makes it usable as
// a post-deployment check.
//
//	go run ./cmd/test-api http://localhost:8080
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

type step struct {
	name   string
	method string
	path   string
	body   any
	want   int
}

func main() {
	baseURL := "http://localhost:8080"
	if len(os.Args) > 1 {
		baseURL = os.Args[1]
	}
	client := &http.Client{Timeout: 10 * time.Second}

	email := fmt.Sprintf("smoke-%s@example.com", uuid.NewString())
	creds := map[string]string{"email": email, "password": "Sm0ke-" + uuid.NewString()}

	var token string
	steps := []step{
		{"register", http.MethodPost, "/api/auth/register", creds, http.StatusCreated},
		{"duplicate register", http.MethodPost, "/api/auth/register", creds, http.StatusBadRequest},
		{"login", http.MethodPost, "/api/auth/login", creds, http.StatusOK},
		{"view profile", http.MethodGet, "/api/profile", nil, http.StatusOK},
		{"update profile", http.MethodPut, "/api/profile", map[string]string{"first_name": "Smoke", "last_name": "Test"}, http.StatusOK},
		{"audit history", http.MethodGet, "/api/profile/audit", nil, http.StatusOK},
	}

	for _, s := range steps {
		body, status, err := call(client, baseURL, s, token)
		if err != nil {
			log.Fatalf("%s: %v", s.name, err)
		}
		fmt.Printf("%-20s %d %s\n", s.name, status, body)
		if status != s.want {
			log.Fatalf("%s: status %d, want %d", s.name, status, s.want)
		}

		var parsed struct {
			Token string `json:"token"`
		}
		if json.Unmarshal(body, &parsed) == nil && parsed.Token != "" {
			token = parsed.Token
		}
	}
}

func call(client *http.Client, baseURL string, s step, token string) ([]byte, int, error) {
	var payload io.Reader
	if s.body != nil {
		data, err := json.Marshal(s.body)
		if err != nil {
			return nil, 0, err
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequest(s.method, baseURL+s.path, payload)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("error reading body: %w", err)
	}
	return body, resp.StatusCode, nil
}
