package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
)

const (
	fileStateProcessing = "PROCESSING"
	fileStateActive     = "ACTIVE"
	fileStateFailed     = "FAILED"
)

type remoteFile struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	State    string `json:"state"`
}

func (c *Client) uploadFile(ctx context.Context, localPath, mimeType, displayName string) (remoteFile, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return remoteFile{}, fmt.Errorf("open local file: %w", err)
	}
	defer f.Close()

	var out struct {
		File remoteFile `json:"file"`
	}
	call := func(callCtx context.Context) error {
		if _, seekErr := f.Seek(0, io.SeekStart); seekErr != nil {
			return fmt.Errorf("rewind local file: %w", seekErr)
		}

		req, reqErr := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint("/upload/v1beta/files"), f)
		if reqErr != nil {
			return fmt.Errorf("create upload request: %w", reqErr)
		}
		req.Header.Set("Content-Type", mimeType)
		req.Header.Set("X-Goog-Upload-Protocol", "raw")
		req.Header.Set("X-Goog-File-Name", displayName)

		return c.do(req, "upload", &out)
	}

	if err := c.execute(ctx, "gemini.upload", call); err != nil {
		return remoteFile{}, err
	}
	if out.File.Name == "" {
		return remoteFile{}, fmt.Errorf("upload response carried no file name")
	}
	return out.File, nil
}

func (c *Client) getFile(ctx context.Context, name string) (remoteFile, error) {
	var out remoteFile
	call := func(callCtx context.Context) error {
		req, reqErr := http.NewRequestWithContext(callCtx, http.MethodGet, c.endpoint("/v1beta/"+name), nil)
		if reqErr != nil {
			return fmt.Errorf("create get-file request: %w", reqErr)
		}
		return c.do(req, "get file", &out)
	}
	if err := c.execute(ctx, "gemini.get_file", call); err != nil {
		return remoteFile{}, err
	}
	return out, nil
}

func (c *Client) listModels(ctx context.Context) ([]string, error) {
	var out struct {
		Models []struct {
			Name                       string   `json:"name"`
			SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
		} `json:"models"`
	}
	call := func(callCtx context.Context) error {
		req, reqErr := http.NewRequestWithContext(callCtx, http.MethodGet, c.endpoint("/v1/models"), nil)
		if reqErr != nil {
			return fmt.Errorf("create list-models request: %w", reqErr)
		}
		return c.do(req, "list models", &out)
	}
	if err := c.execute(ctx, "gemini.list_models", call); err != nil {
		return nil, err
	}

	var names []string
	for _, m := range out.Models {
		for _, method := range m.SupportedGenerationMethods {
			if method == "generateContent" {
				names = append(names, strings.TrimPrefix(m.Name, "models/"))
				break
			}
		}
	}
	return names, nil
}

func (c *Client) generateContent(ctx context.Context, model string, remote remoteFile) (string, error) {
	payload := map[string]any{
		"contents": []map[string]any{{
			"parts": []map[string]any{
				{"fileData": map[string]string{
					"mimeType": remote.MimeType,
					"fileUri":  remote.URI,
				}},
				{"text": safetyPrompt},
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	call := func(callCtx context.Context) error {
		endpoint := c.endpoint(fmt.Sprintf("/v1beta/models/%s:generateContent", model))
		req, reqErr := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
		if reqErr != nil {
			return fmt.Errorf("create generate request: %w", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")
		return c.do(req, "generate", &out)
	}
	if err := c.execute(ctx, "gemini.generate", call); err != nil {
		return "", err
	}

	var text strings.Builder
	for _, cand := range out.Candidates {
		for _, part := range cand.Content.Parts {
			text.WriteString(part.Text)
		}
		break
	}
	return strings.TrimSpace(text.String()), nil
}

func (c *Client) deleteFile(ctx context.Context, name string) error {
	call := func(callCtx context.Context) error {
		req, reqErr := http.NewRequestWithContext(callCtx, http.MethodDelete, c.endpoint("/v1beta/"+name), nil)
		if reqErr != nil {
			return fmt.Errorf("create delete request: %w", reqErr)
		}
		return c.do(req, "delete file", nil)
	}
	return c.execute(ctx, "gemini.delete_file", call)
}

func (c *Client) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	if c.executor == nil {
		return call(ctx)
	}
	return c.executor.Execute(ctx, operation, call, classifyGeminiError)
}

func (c *Client) endpoint(p string) string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	u := base + path.Clean("/"+p)
	return u + "?key=" + url.QueryEscape(c.cfg.APIKey)
}

func (c *Client) do(req *http.Request, operation string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gemini %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
