package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

func get(url string) (string, error) {
	return do(http.MethodGet, url, "", nil)
}

func post(url, account string, body any) (string, error) {
	return do(http.MethodPost, url, account, body)
}

func do(method, url, account string, body any) (string, error) {
	payload := &bytes.Buffer{}
	if body != nil {
		if err := json.NewEncoder(payload).Encode(body); err != nil {
			return "", err
		}
	}

	req, err := http.NewRequest(method, url, payload)
	if err != nil {
		return "", err
	}
	req.Header.Add("Content-Type", "application/json")
	if len(account) > 0 {
		req.Header.Add("X-Account", account)
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	// nolint
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%s", strings.TrimSpace(string(buf)))
	}

	indented := &bytes.Buffer{}
	if err := json.Indent(indented, buf, "", "  "); err != nil {
		return string(buf), nil
	}
	return indented.String(), nil
}
