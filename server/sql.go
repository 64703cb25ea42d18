package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/getnao/nao-cli/model"
)

const (
	sqlExecutePath = "/execute_sql"
	sqlTimeout     = 60 * time.Second
)

// SQLResult is the outcome of one SQL execution. Err carries both
// server-side failures and transport-level ones; the two are not
// distinguished by callers.
type SQLResult struct {
	Data           []model.Row
	BytesProcessed int64
	Err            string
}

func (r SQLResult) Failed() bool { return r.Err != "" }

// SQLClient talks to the execution server's /execute_sql endpoint.
type SQLClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewSQLClient(baseURL string) *SQLClient {
	return &SQLClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: sqlTimeout},
	}
}

type sqlRequest struct {
	SQL              string  `json:"sql"`
	NaoProjectFolder string  `json:"nao_project_folder"`
	DatabaseID       *string `json:"database_id"`
}

type sqlResponse struct {
	Data           []model.Row `json:"data"`
	BytesProcessed int64       `json:"bytes_processed"`
	Detail         string      `json:"detail"`
}

// Execute runs sql against the execution server in the context of
// projectFolder. Every failure mode, including connection refusal and
// timeouts, is folded into SQLResult.Err; this client never returns a Go
// error, so a broken query can never abort a test run.
func (c *SQLClient) Execute(ctx context.Context, sql, projectFolder, databaseID string) SQLResult {
	reqBody := sqlRequest{SQL: sql, NaoProjectFolder: projectFolder}
	if databaseID != "" {
		reqBody.DatabaseID = &databaseID
	}

	payload, err := sonic.Marshal(reqBody)
	if err != nil {
		return SQLResult{Err: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sqlExecutePath, bytes.NewReader(payload))
	if err != nil {
		return SQLResult{Err: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SQLResult{Err: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SQLResult{Err: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failure sqlResponse
		if len(body) > 0 && sonic.Unmarshal(body, &failure) == nil && failure.Detail != "" {
			return SQLResult{Err: failure.Detail}
		}
		return SQLResult{Err: resp.Status}
	}

	var success sqlResponse
	if err := sonic.Unmarshal(body, &success); err != nil {
		return SQLResult{Err: fmt.Sprintf("invalid execution server response: %v", err)}
	}
	if success.Data == nil {
		success.Data = []model.Row{}
	}
	return SQLResult{Data: success.Data, BytesProcessed: success.BytesProcessed}
}
