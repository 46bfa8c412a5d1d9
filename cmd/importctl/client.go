package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// apiClient is a thin wrapper over the server's JSON API. Tenant and user
// identity ride on every request as headers.
type apiClient struct {
	base   string
	tenant string
	user   string
	http   *http.Client
}

func newClient() (*apiClient, error) {
	if flagTenant == "" {
		return nil, fmt.Errorf("--tenant (or CUSTIMPORT_TENANT) is required")
	}
	if flagUser == "" {
		return nil, fmt.Errorf("--user (or CUSTIMPORT_USER) is required")
	}
	return &apiClient{
		base:   flagServer,
		tenant: flagTenant,
		user:   flagUser,
		http:   &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

func (c *apiClient) do(method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-Tenant-ID", c.tenant)
	req.Header.Set("X-User-ID", c.user)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(data))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) getJSON(path string, out any) error {
	return c.do(http.MethodGet, path, nil, "", out)
}

func (c *apiClient) postJSON(path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.do(http.MethodPost, path, bytes.NewReader(data), "application/json", out)
}

func (c *apiClient) uploadFile(path, filePath string, out any) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	return c.do(http.MethodPost, path, &buf, writer.FormDataContentType(), out)
}

// download streams a response body to a local file.
func (c *apiClient) download(path, destPath string) error {
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Tenant-ID", c.tenant)
	req.Header.Set("X-User-ID", c.user)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(data))
	}

	dest, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dest.Close()

	_, err = io.Copy(dest, resp.Body)
	return err
}

func printJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
