package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/rendis/flowlens/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func facts() map[string]any {
	return map[string]any{
		"name":      "Create_Task",
		"label":     "Create Task",
		"kind":      "recordCreate",
		"in_loop":   true,
		"has_fault": false,
		"visited":   true,
		"targets":   []string{"Notify"},
		"literals":  []string{"00G5e000001AbCdEAF"},
	}
}

func TestNewExprEngine(t *testing.T) {
	e := NewExprEngine()
	assert.NotNil(t, e)
	assert.Equal(t, "expr", e.Name())
}

func TestExprEngine_ImplementsEngine(t *testing.T) {
	var _ Engine = (*ExprEngine)(nil)
}

func TestExpr_Arithmetic(t *testing.T) {
	e := NewExprEngine()
	out, err := e.Evaluate(context.Background(), "2 + 3 * 4", nil)
	require.NoError(t, err)
	assert.Equal(t, 14, out)
}

func TestExpr_LintConditions(t *testing.T) {
	e := NewExprEngine()

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"dml in loop", `in_loop && kind in ["recordCreate", "recordUpdate", "recordDelete"]`, true},
		{"missing fault", `!has_fault && kind startsWith "record"`, true},
		{"target count", `len(targets) == 1`, true},
		{"literal match", `any(literals, {# matches "^00[0-9A-Za-z]{13,16}$"})`, true},
		{"label contains", `label contains "Task"`, true},
		{"kind mismatch", `kind == "loop"`, false},
		{"undefined is nil", `missing ?? false`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Test(context.Background(), tt.expr, facts())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpr_TestNilIsFalse(t *testing.T) {
	e := NewExprEngine()
	got, err := e.Test(context.Background(), `undefined_fact`, facts())
	require.NoError(t, err)
	assert.False(t, got)
}

func TestExpr_TestRequiresBoolean(t *testing.T) {
	e := NewExprEngine()
	_, err := e.Test(context.Background(), `name`, facts())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExpression))
}

func TestExpr_EmptyExpression(t *testing.T) {
	e := NewExprEngine()
	_, err := e.Evaluate(context.Background(), "", nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExpression))
}

func TestExpr_CompileError(t *testing.T) {
	e := NewExprEngine()
	_, err := e.Evaluate(context.Background(), "kind ==", facts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expr compile error")

	require.Error(t, e.Compile("kind =="))
	require.Error(t, e.Compile(""))
	require.NoError(t, e.Compile(`kind == "decision" && in_loop`))
}

func TestExpr_RuntimeError(t *testing.T) {
	e := NewExprEngine()
	_, err := e.Evaluate(context.Background(), `targets[5] == "x"`, facts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expr evaluation failed")
}

func TestExpr_Caching(t *testing.T) {
	e := NewExprEngine()
	for range 3 {
		_, err := e.Evaluate(context.Background(), `in_loop`, facts())
		require.NoError(t, err)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	assert.Len(t, e.cache, 1)
}

func TestExpr_Concurrent(t *testing.T) {
	e := NewExprEngine()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Test(context.Background(), `in_loop && !has_fault`, facts()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
