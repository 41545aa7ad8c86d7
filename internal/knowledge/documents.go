// Package knowledge talks to the remote knowledge-base service: document
// upload, deletion and listing over signed REST calls, and streaming
// question-answering over a signed websocket.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/preplay-ai/preplay/internal/auth"
	"github.com/preplay-ai/preplay/internal/config"
	"github.com/preplay-ai/preplay/internal/domain"
)

// RemoteFile is one row of the remote document list. The remote list is
// the authoritative one; local registry rows are reconciled against it.
type RemoteFile struct {
	FileID     string `json:"fileId"`
	FileName   string `json:"fileName"`
	ExtName    string `json:"extName"`
	FileStatus string `json:"fileStatus"`
	CreateTime string `json:"createTime"`
}

// DocClient performs the signed REST calls against the document
// endpoints.
type DocClient struct {
	baseURL    string
	signer     *auth.DocSigner
	httpClient *http.Client
}

// NewDocClient creates a document client from the knowledge-base config.
func NewDocClient(cfg config.ChatDocConfig) *DocClient {
	return &DocClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		signer: &auth.DocSigner{
			AppID:     cfg.AppID,
			APISecret: cfg.APISecret,
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type apiResponse struct {
	Code int             `json:"code"`
	Desc string          `json:"desc"`
	SID  string          `json:"sid"`
	Data json.RawMessage `json:"data"`
}

// Upload registers a document with the remote knowledge base and returns
// the remote-assigned file id.
func (c *DocClient) Upload(ctx context.Context, fileName string, file io.Reader) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("copy file: %w", err)
	}
	if err := w.WriteField("fileName", fileName); err != nil {
		return "", fmt.Errorf("write fileName field: %w", err)
	}
	if err := w.WriteField("fileType", "wiki"); err != nil {
		return "", fmt.Errorf("write fileType field: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/openapi/v1/file/upload", &body)
	if err != nil {
		return "", err
	}
	c.signer.SetHeaders(req.Header)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}

	var data struct {
		FileID string `json:"fileId"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return "", fmt.Errorf("%w: decode upload response: %v", domain.ErrRemote, err)
	}
	if data.FileID == "" {
		return "", fmt.Errorf("%w: upload acknowledged without a fileId", domain.ErrRemote)
	}
	return data.FileID, nil
}

// Delete removes documents from the remote knowledge base.
func (c *DocClient) Delete(ctx context.Context, fileIDs []string) error {
	form := url.Values{}
	form.Set("fileIds", strings.Join(fileIDs, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/openapi/v1/file/del", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	c.signer.SetHeaders(req.Header)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, err = c.do(req)
	return err
}

// List fetches one page of the remote document list. fileName and
// extName are optional filters.
func (c *DocClient) List(ctx context.Context, currentPage, pageSize int, fileName, extName string) (int, []RemoteFile, error) {
	reqBody := map[string]interface{}{
		"currentPage": currentPage,
		"pageSize":    pageSize,
	}
	if fileName != "" {
		reqBody["fileName"] = fileName
	}
	if extName != "" {
		reqBody["extName"] = extName
	}

	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/openapi/v1/file/list", bytes.NewReader(encoded))
	if err != nil {
		return 0, nil, err
	}
	c.signer.SetHeaders(req.Header)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return 0, nil, err
	}

	var data struct {
		Total int          `json:"total"`
		Rows  []RemoteFile `json:"rows"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return 0, nil, fmt.Errorf("%w: decode list response: %v", domain.ErrRemote, err)
	}
	return data.Total, data.Rows, nil
}

// do sends the request and decodes the common response envelope. A
// nonzero code means the signed call was rejected; it is surfaced as an
// authentication error and never retried.
func (c *DocClient) do(req *http.Request) (*apiResponse, error) {
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrTransport, err)
	}

	var resp apiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrRemote, httpResp.StatusCode, string(raw))
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%w: code %d: %s", domain.ErrAuth, resp.Code, resp.Desc)
	}
	return &resp, nil
}
