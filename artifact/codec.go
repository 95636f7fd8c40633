package artifact

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/feature"
	"github.com/rushteam/rankfit/solver"
)

// ModelDecoder 从 JSON 还原 boosting 模型
type ModelDecoder func(data []byte) (core.BoostedModel, error)

var (
	decodersMu sync.RWMutex
	decoders   = map[string]ModelDecoder{
		solver.EnsembleName:    solver.DecodeEnsemble,
		solver.RemoteModelName: solver.DecodeRemoteModel,
	}
)

// RegisterModel 注册自定义 boosting 模型的解码器
func RegisterModel(name string, decode ModelDecoder) {
	decodersMu.Lock()
	defer decodersMu.Unlock()
	decoders[name] = decode
}

func decoder(name string) (ModelDecoder, bool) {
	decodersMu.RLock()
	defer decodersMu.RUnlock()
	d, ok := decoders[name]
	return d, ok
}

// envelope 是产物的 JSON 表示
type envelope struct {
	ID      string                     `json:"id,omitempty"`
	Kind    Kind                       `json:"kind"`
	Dim     int                        `json:"dim"`
	Weights []float64                  `json:"weights,omitempty"`
	Groups  map[core.GroupID][]float64 `json:"groups,omitempty"`
	Model   *modelEnvelope             `json:"model,omitempty"`

	Preprocessor *feature.Preprocessor `json:"preprocessor,omitempty"`

	// Hashed 表示分组权重存放在独立的 hash 中
	Hashed bool `json:"hashed,omitempty"`
}

type modelEnvelope struct {
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params"`
}

func toEnvelope(a Artifact) (*envelope, error) {
	env := &envelope{Kind: a.Kind(), Dim: a.Dim(), Preprocessor: a.Preprocessor()}
	switch v := a.(type) {
	case *Ungrouped:
		env.Weights = v.W
	case *Grouped:
		env.Groups = v.W
	case *Boosted:
		params, err := json.Marshal(v.Model)
		if err != nil {
			return nil, fmt.Errorf("artifact: marshal model %s: %w", v.Model.Name(), err)
		}
		env.Model = &modelEnvelope{Name: v.Model.Name(), Params: params}
	default:
		return nil, core.ConfigurationError(core.ModuleArtifact, "artifact: unknown artifact %T", a)
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("artifact: marshal: %w", err)
	}
	env.ID = uuid.NewSHA1(uuid.NameSpaceOID, payload).String()
	return env, nil
}

func (env *envelope) artifact() (Artifact, error) {
	a, err := env.weights()
	if err != nil {
		return nil, err
	}
	if p := env.Preprocessor; p != nil {
		if _, err := feature.ParsePreprocessOption(string(p.Option)); err != nil {
			return nil, err
		}
		if n := len(p.Std); n > 0 && env.Dim > 0 && n != env.Dim {
			return nil, core.DimensionError(core.ModuleArtifact, "artifact: preprocessor fitted on %d features for dim %d", n, env.Dim)
		}
	}
	return WithPreprocessor(a, env.Preprocessor), nil
}

func (env *envelope) weights() (Artifact, error) {
	switch env.Kind {
	case KindUngrouped:
		if len(env.Weights) != env.Dim {
			return nil, core.DimensionError(core.ModuleArtifact, "artifact: %d weights for dim %d", len(env.Weights), env.Dim)
		}
		return &Ungrouped{W: env.Weights}, nil
	case KindGrouped:
		groups := env.Groups
		if groups == nil {
			groups = make(map[core.GroupID][]float64)
		}
		for g, w := range groups {
			if len(w) != env.Dim {
				return nil, core.DimensionError(core.ModuleArtifact, "artifact: group %d has %d weights for dim %d", g, len(w), env.Dim)
			}
		}
		return &Grouped{D: env.Dim, W: groups}, nil
	case KindBoosted:
		if env.Model == nil {
			return nil, core.ConfigurationError(core.ModuleArtifact, "artifact: boosted artifact without model")
		}
		decode, ok := decoder(env.Model.Name)
		if !ok {
			return nil, core.ConfigurationError(core.ModuleArtifact, "artifact: unknown model %q", env.Model.Name)
		}
		model, err := decode(env.Model.Params)
		if err != nil {
			return nil, fmt.Errorf("artifact: decode model %s: %w", env.Model.Name, err)
		}
		return &Boosted{D: env.Dim, Model: model}, nil
	default:
		return nil, core.ConfigurationError(core.ModuleArtifact, "artifact: unknown kind %q", env.Kind)
	}
}

// ID 返回产物内容的确定性 UUID（v5），相同权重得到相同 id
func ID(a Artifact) (string, error) {
	env, err := toEnvelope(a)
	if err != nil {
		return "", err
	}
	return env.ID, nil
}

// Marshal 序列化产物
func Marshal(a Artifact) ([]byte, error) {
	env, err := toEnvelope(a)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Unmarshal 反序列化产物
func Unmarshal(data []byte) (Artifact, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("artifact: unmarshal: %w", err)
	}
	return env.artifact()
}
