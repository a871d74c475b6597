package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// ApiClient handles API requests to the Proofbench API
type ApiClient struct {
	httpClient *http.Client
	BaseURL    string
}

// NewApiClient creates a new API client
func NewApiClient() *ApiClient {
	baseURL := os.Getenv("PROOFBENCH_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	return &ApiClient{
		httpClient: &http.Client{
			Timeout: time.Second * 30,
		},
		BaseURL: baseURL,
	}
}

// CheckHealth checks if the API is up and running
func (c *ApiClient) CheckHealth() (bool, error) {
	resp, err := c.httpClient.Get(c.BaseURL + "/health")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("API health check failed with status code: %d", resp.StatusCode)
	}
	return true, nil
}

// BatchStatus mirrors the batch resource returned by the server.
type BatchStatus struct {
	ID                  string     `json:"id"`
	WorkspaceID         uint       `json:"workspace_id"`
	TestType            string     `json:"test_type"`
	Total               int        `json:"total"`
	Completed           int        `json:"completed"`
	Successful          int        `json:"successful"`
	Failed              int        `json:"failed"`
	Status              string     `json:"status"`
	EstimatedCompletion *time.Time `json:"estimated_completion"`
	ErrorLog            []LogLine  `json:"error_log"`
}

// LogLine is one entry in a batch's error log.
type LogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// StartBatch kicks off a batch run and returns the created batch.
func (c *ApiClient) StartBatch(workspaceID uint, agentIDs, testCaseIDs []uint, testType, benchmarkID string, delayMS int) (*BatchStatus, error) {
	payload := map[string]interface{}{
		"workspace_id":  workspaceID,
		"agent_ids":     agentIDs,
		"test_case_ids": testCaseIDs,
		"test_type":     testType,
		"benchmark_id":  benchmarkID,
		"delay_ms":      delayMS,
	}
	var batch BatchStatus
	if err := c.post("/api/v1/batches", payload, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// GetBatch fetches the current state of a batch.
func (c *ApiClient) GetBatch(workspaceID uint, id string) (*BatchStatus, error) {
	var batch BatchStatus
	if err := c.get(fmt.Sprintf("/api/v1/batches/%s?workspace_id=%d", id, workspaceID), &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// CancelBatch requests cancellation of a running batch.
func (c *ApiClient) CancelBatch(workspaceID uint, id string) (string, error) {
	var result struct {
		Status  string `json:"status"`
		BatchID string `json:"batch_id"`
	}
	if err := c.post(fmt.Sprintf("/api/v1/batches/%s/cancel?workspace_id=%d", id, workspaceID), nil, &result); err != nil {
		return "", err
	}
	return result.Status, nil
}

// WatchBatch streams batch progress over the websocket endpoint, invoking
// onUpdate for every snapshot until the batch reaches a terminal state.
func (c *ApiClient) WatchBatch(workspaceID uint, id string, onUpdate func(BatchStatus)) error {
	wsURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return err
	}
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = "/api/v1/batches/" + id + "/ws"
	wsURL.RawQuery = fmt.Sprintf("workspace_id=%d", workspaceID)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to batch stream: %w", err)
	}
	defer conn.Close()

	for {
		var snapshot BatchStatus
		if err := conn.ReadJSON(&snapshot); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		onUpdate(snapshot)
	}
}

// ComplianceReport mirrors the compliance report resource.
type ComplianceReport struct {
	ID               uint     `json:"id"`
	WorkspaceID      uint     `json:"workspace_id"`
	AgentID          uint     `json:"agent_id"`
	TotalTests       int      `json:"total_tests"`
	TestsPassed      int      `json:"tests_passed"`
	TestsFailed      int      `json:"tests_failed"`
	ComplianceScore  float64  `json:"compliance_score"`
	ExecutiveSummary string   `json:"executive_summary"`
	Recommendations  []string `json:"recommendations"`
	LessonsLearned   []string `json:"lessons_learned"`
}

// GenerateComplianceReport asks the server to build a compliance report.
func (c *ApiClient) GenerateComplianceReport(workspaceID, agentID uint) (*ComplianceReport, error) {
	payload := map[string]interface{}{"workspace_id": workspaceID, "agent_id": agentID}
	var report ComplianceReport
	if err := c.post("/api/v1/compliance/reports", payload, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *ApiClient) get(path string, out interface{}) error {
	resp, err := c.httpClient.Get(c.BaseURL + path)
	if err != nil {
		return err
	}
	return c.decode(resp, out)
}

func (c *ApiClient) post(path string, payload, out interface{}) error {
	body := &bytes.Buffer{}
	if payload != nil {
		if err := json.NewEncoder(body).Encode(payload); err != nil {
			return err
		}
	}
	resp, err := c.httpClient.Post(c.BaseURL+path, "application/json", body)
	if err != nil {
		return err
	}
	return c.decode(resp, out)
}

func (c *ApiClient) decode(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
