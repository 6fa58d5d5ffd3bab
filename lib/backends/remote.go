// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backends

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/decoder"
	"go.uber.org/zap"
)

// StatusError is returned when the predict server answers with a non-200 status.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Endpoint, e.Code, e.Body)
}

// RemoteModelConfig configures a RemoteModel.
type RemoteModelConfig struct {
	// BaseURL of the predict server (e.g. http://localhost:8500).
	BaseURL string
	// Name used in logs and metrics. Defaults to the host.
	Name string
	// HTTPClient overrides the default client. No timeout is set by default:
	// a predict call blocks until it returns or the context is cancelled.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// RemoteModel implements Model against an HTTP predict server.
//
// Protocol:
//
//	POST {base}/predict  body: ModelInputs (JSON)  -> ModelOutput (JSON)
//	GET  {base}/config                             -> DecoderConfig (JSON), optional
type RemoteModel struct {
	baseURL       string
	name          string
	client        *http.Client
	logger        *zap.Logger
	decoderConfig *DecoderConfig
}

// NewRemoteModel validates the config and creates a RemoteModel.
func NewRemoteModel(cfg RemoteModelConfig) (*RemoteModel, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("remote model: base URL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("remote model: parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote model: unsupported scheme %q", u.Scheme)
	}

	name := cfg.Name
	if name == "" {
		name = u.Host
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RemoteModel{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		name:    name,
		client:  client,
		logger:  logger,
	}, nil
}

// Predict posts the inputs to the predict endpoint and returns the logits.
func (m *RemoteModel) Predict(ctx context.Context, inputs *ModelInputs) (*ModelOutput, error) {
	body, err := sonic.Marshal(inputs)
	if err != nil {
		return nil, fmt.Errorf("encoding predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling predict: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, readStatusError("predict", resp)
	}

	var out ModelOutput
	if err := decoder.NewStreamDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding predict response: %w", err)
	}
	return &out, nil
}

// LoadDecoderConfig fetches the server's decoder config and remembers it so
// that DecoderConfig can serve it. A server without a config endpoint (404)
// is not an error; the result is nil.
func (m *RemoteModel) LoadDecoderConfig(ctx context.Context) (*DecoderConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/config", nil)
	if err != nil {
		return nil, fmt.Errorf("creating config request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling config: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		m.logger.Debug("Predict server has no config endpoint", zap.String("model", m.name))
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, readStatusError("config", resp)
	}

	var cfg DecoderConfig
	if err := decoder.NewStreamDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config response: %w", err)
	}
	m.decoderConfig = &cfg
	m.logger.Info("Loaded decoder config from predict server",
		zap.String("model", m.name),
		zap.Int("vocab_size", cfg.VocabSize),
		zap.Int("max_length", cfg.MaxLength))
	return &cfg, nil
}

// DecoderConfig returns the config loaded by LoadDecoderConfig, if any.
func (m *RemoteModel) DecoderConfig() *DecoderConfig {
	return m.decoderConfig
}

// Close releases idle connections.
func (m *RemoteModel) Close() error {
	m.client.CloseIdleConnections()
	return nil
}

// Name returns the model name.
func (m *RemoteModel) Name() string {
	return m.name
}

func readStatusError(endpoint string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{
		Endpoint: endpoint,
		Code:     resp.StatusCode,
		Body:     strings.TrimSpace(string(msg)),
	}
}
