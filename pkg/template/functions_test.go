package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuncRandomInt(t *testing.T) {
	for i := 0; i < 100; i++ {
		n := funcRandomInt(3, 1)
		assert.GreaterOrEqual(t, n, 1)
		assert.LessOrEqual(t, n, 3)
	}
	assert.Equal(t, -2, funcRandomInt(-2, -2))
}

func TestFuncParseJSON(t *testing.T) {
	assert.Nil(t, funcParseJSON("{"))
	assert.Nil(t, funcParseJSON(""))
	assert.Equal(t, map[string]any{"a": 1.0}, funcParseJSON(`{"a":1}`))
}

func TestFuncStringify(t *testing.T) {
	assert.Equal(t, `{"a":[1,2]}`, funcStringify(map[string]any{"a": []int{1, 2}}))
	assert.Equal(t, `"x"`, funcStringify("x"))
	assert.Equal(t, "", funcStringify(func() {}))
}

func TestFuncJSONPath(t *testing.T) {
	doc := map[string]any{"a": []any{map[string]any{"b": "c"}}}
	assert.Equal(t, "c", funcJSONPath(doc, "$.a[0].b"))
	assert.Nil(t, funcJSONPath(doc, "$.z"))
	assert.Nil(t, funcJSONPath(doc, "$[[["))
	assert.Equal(t, 2.0, funcJSONPath(`{"n":2}`, "$.n"))
}

func TestFuncCase(t *testing.T) {
	assert.Equal(t, "STRASSE", funcUpper("straße"))
	assert.Equal(t, "hello", funcLower("HeLLo"))
	assert.Equal(t, "aGVsbG8=", funcBase64("hello"))
}

func TestExprEvaluator_CachesPrograms(t *testing.T) {
	ev := NewExprEvaluator()
	ctx := testContext(t)

	v, err := ev.Eval("1 + 2", ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	_, err = ev.Eval("1 +", ctx)
	require.Error(t, err)
	_, err = ev.Eval("1 +", ctx)
	require.Error(t, err)

	ev.mu.RLock()
	defer ev.mu.RUnlock()
	assert.Len(t, ev.programs, 2)
}

func TestExprEvaluator_HelperArity(t *testing.T) {
	ev := NewExprEvaluator()
	ctx := testContext(t)

	_, err := ev.Eval(`randomInt(1)`, ctx)
	assert.Error(t, err)

	_, err = ev.Eval(`randomInt("a", 2)`, ctx)
	assert.Error(t, err)

	_, err = ev.Eval(`jsonPath(bodyJson, 5)`, ctx)
	assert.Error(t, err)
}

func TestExprEvaluator_NoEnvironmentLeak(t *testing.T) {
	ev := NewExprEvaluator()
	_, err := ev.Eval(`os.Getenv("HOME")`, testContext(t))
	assert.Error(t, err)
}
