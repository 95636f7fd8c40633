package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("judgment", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("group_i", cel.IntType),
		cel.Variable("group_j", cel.IntType),
	)
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// Eval 是 judgment 过滤表达式的解释器，使用 CEL (Common Expression Language) 实现。
// 表达式只编译一次，可以对大量 judgment 重复求值。
//
// 可用变量：
//   - judgment.i / judgment.j：行下标（int）
//   - judgment.relation / judgment.importance：double
//   - group_i / group_j：两行所属分组（未分组时为 0）
//
// 示例：
//   - `judgment.importance >= 0.5`
//   - `judgment.relation > 0.0 && group_i == group_j`
type Eval struct {
	expr string
	prg  cel.Program
}

// NewEval 编译表达式。空表达式表示恒为 true。
func NewEval(expr string) (*Eval, error) {
	e := &Eval{expr: expr}
	if expr == "" {
		return e, nil
	}
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %v", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %v", err)
	}
	e.prg = prg
	return e, nil
}

// Expr 返回原始表达式
func (e *Eval) Expr() string { return e.expr }

// Evaluate 对一个 judgment 求值
func (e *Eval) Evaluate(i, j int, relation, importance float64, groupI, groupJ int) (bool, error) {
	if e.prg == nil {
		return true, nil
	}
	out, _, err := e.prg.Eval(map[string]any{
		"judgment": map[string]any{
			"i":          int64(i),
			"j":          int64(j),
			"relation":   relation,
			"importance": importance,
		},
		"group_i": int64(groupI),
		"group_j": int64(groupJ),
	})
	if err != nil {
		return false, fmt.Errorf("eval error: %v", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}
