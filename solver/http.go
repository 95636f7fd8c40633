package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/rankfit/core"
)

// RemoteModelName 是 HTTPBooster 训练出的模型名
const RemoteModelName = "xgboost-http"

// DefaultBoosterParams 是发给远程 XGBoost 服务的默认训练参数
var DefaultBoosterParams = map[string]any{
	"objective":              "rank:ndcg",
	"lambdarank_pair_method": "mean",
	"tree_method":            "hist",
	"seed":                   DefaultSeed,
}

// HTTPBooster 通过 HTTP 调用外部梯度提升服务（如 XGBoost 的封装服务）训练排序模型。
//
// 协议（JSON）：
//
//	POST {Endpoint}/fit      {"instances": [[...]], "labels": [...], "group": [...], "params": {...}}
//	                      →  {"model_id": "..."}
//	POST {Endpoint}/predict  {"model_id": "...", "instances": [[...]]}
//	                      →  {"scores": [...]}
type HTTPBooster struct {
	Endpoint string // 例如 "http://localhost:8080"
	Timeout  time.Duration
	Params   map[string]any
	Client   *http.Client
}

var _ core.BoostedRanker = (*HTTPBooster)(nil)

// NewHTTPBooster 创建远程 booster，timeout 为 0 时默认 30s
func NewHTTPBooster(endpoint string, timeout time.Duration) *HTTPBooster {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPBooster{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Timeout:  timeout,
		Client:   &http.Client{Timeout: timeout},
	}
}

// Fit 上传训练数据，返回远程模型句柄
func (b *HTTPBooster) Fit(ctx context.Context, X mat.Matrix, labels []float64, groupSizes []int) (core.BoostedModel, error) {
	n, _ := X.Dims()
	if len(labels) != n {
		return nil, core.DimensionError(core.ModuleSolver, "solver: %d labels for %d rows", len(labels), n)
	}
	params := make(map[string]any, len(DefaultBoosterParams)+len(b.Params))
	for k, v := range DefaultBoosterParams {
		params[k] = v
	}
	for k, v := range b.Params {
		params[k] = v
	}

	var result struct {
		ModelID string `json:"model_id"`
	}
	err := postJSON(ctx, b.client(), b.Endpoint+"/fit", map[string]any{
		"instances": instances(X),
		"labels":    labels,
		"group":     groupSizes,
		"params":    params,
	}, &result)
	if err != nil {
		return nil, core.SolverError(core.ModuleSolver, "solver: remote fit: %v", err)
	}
	if result.ModelID == "" {
		return nil, core.SolverError(core.ModuleSolver, "solver: remote fit returned empty model_id")
	}
	return &RemoteModel{Endpoint: b.Endpoint, ModelID: result.ModelID, Timeout: b.Timeout, client: b.Client}, nil
}

func (b *HTTPBooster) client() *http.Client {
	if b.Client == nil {
		b.Client = &http.Client{Timeout: b.Timeout}
	}
	return b.Client
}

// RemoteModel 是远程服务上已训练模型的句柄，可 JSON 序列化。
type RemoteModel struct {
	Endpoint string        `json:"endpoint"`
	ModelID  string        `json:"model_id"`
	Timeout  time.Duration `json:"timeout,omitempty"`

	client *http.Client
}

var _ core.BoostedModel = (*RemoteModel)(nil)

// Name 返回模型名称
func (m *RemoteModel) Name() string { return RemoteModelName }

// Predict 调用远程服务打分
func (m *RemoteModel) Predict(ctx context.Context, X mat.Matrix) ([]float64, error) {
	if m.client == nil {
		m.client = &http.Client{Timeout: m.Timeout}
	}
	n, _ := X.Dims()
	if n == 0 {
		return []float64{}, nil
	}
	var result struct {
		Scores []float64 `json:"scores"`
	}
	err := postJSON(ctx, m.client, m.Endpoint+"/predict", map[string]any{
		"model_id":  m.ModelID,
		"instances": instances(X),
	}, &result)
	if err != nil {
		return nil, core.SolverError(core.ModuleSolver, "solver: remote predict: %v", err)
	}
	if len(result.Scores) != n {
		return nil, core.SolverError(core.ModuleSolver, "solver: response scores count mismatch: expected %d, got %d", n, len(result.Scores))
	}
	return result.Scores, nil
}

// DecodeRemoteModel 从 JSON 还原远程模型句柄
func DecodeRemoteModel(data []byte) (core.BoostedModel, error) {
	var m RemoteModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func instances(X mat.Matrix) [][]float64 {
	n, d := X.Dims()
	out := make([][]float64, n)
	for i := range out {
		row := make([]float64, d)
		for k := range row {
			row[k] = X.At(i, k)
		}
		out[i] = row
	}
	return out
}

func postJSON(ctx context.Context, client *http.Client, url string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("rpc error: status=%d, read body failed: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("rpc error: status=%d, body=%s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
