package integration_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"casdoorlink/core"

	_ "modernc.org/sqlite"
)

const testSessionSecret = "test-secret-key-for-integration-tests"

type CommandResponse struct {
	Reply string `json:"reply"`
}

func sessionToken(chatUserID string) string {
	token, err := core.GenerateSessionToken(chatUserID, &core.Config{
		Session: core.SessionConfig{Secret: testSessionSecret, TokenDuration: 600},
	})
	if err != nil {
		panic(err)
	}
	return token
}

func sendCommand(baseURL, token, text, locale string) (*http.Response, error) {
	body := map[string]string{
		"text":   text,
		"locale": locale,
	}
	jsonBody, _ := json.Marshal(body)

	client := &http.Client{Timeout: 5 * time.Second}
	req, _ := http.NewRequest(http.MethodPost, baseURL+"/commands", bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return client.Do(req)
}

// command sends text as chatUserID and returns the reply.
func command(baseURL, chatUserID, text string) (string, error) {
	resp, err := sendCommand(baseURL, sessionToken(chatUserID), text, "en-US")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	var result CommandResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Reply, nil
}

func callback(baseURL, code, state string) (*http.Response, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	return client.Get(fmt.Sprintf("%s/callback?code=%s&state=%s", baseURL, code, state))
}

func countBindings(dbPath string) (int, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM casdoor_bindings").Scan(&count)
	return count, err
}

func boundUsername(dbPath, chatUserID string) (string, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return "", err
	}
	defer db.Close()

	var username string
	err = db.QueryRow("SELECT casdoor_username FROM casdoor_bindings WHERE id = ?", chatUserID).Scan(&username)
	return username, err
}

func cleanDatabase(dbPath string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec("DELETE FROM casdoor_bindings")
	return err
}

func waitForServer(baseURL string, maxAttempts int) error {
	client := &http.Client{Timeout: 1 * time.Second}
	for i := 0; i < maxAttempts; i++ {
		resp, err := client.Get(baseURL + "/health")
		if err == nil && resp.StatusCode == 200 {
			resp.Body.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("server failed to start after %d attempts", maxAttempts)
}
