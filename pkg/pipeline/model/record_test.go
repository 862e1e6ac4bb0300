package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/stelp/pkg/pipeline/model"
)

func TestTextRecord(t *testing.T) {
	t.Parallel()

	rec := model.NewText("hello")
	assert.True(t, rec.IsText())
	assert.False(t, rec.IsStructured())

	content, err := rec.Text()
	require.NoError(t, err)
	assert.Equal(t, "hello", content)

	_, err = rec.Structured()
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTypeMismatch)
}

func TestStructuredRecord(t *testing.T) {
	t.Parallel()

	fields := model.NewFields()
	fields.Set("name", "api")
	fields.Set("latency", int64(42))

	rec := model.NewStructured(fields)
	assert.True(t, rec.IsStructured())

	got, err := rec.Structured()
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "latency"}, got.Keys())

	_, err = rec.Text()
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTypeMismatch)
}

func TestReplaceSwapsExclusively(t *testing.T) {
	t.Parallel()

	rec := model.NewText("raw")
	fields := model.NewFields()
	fields.Set("k", "v")
	rec.ReplaceStructured(fields)

	require.True(t, rec.IsStructured())
	_, err := rec.Text()
	assert.ErrorIs(t, err, model.ErrTypeMismatch)

	rec.ReplaceText("back")
	require.True(t, rec.IsText())
	content, err := rec.Text()
	require.NoError(t, err)
	assert.Equal(t, "back", content)
	_, err = rec.Structured()
	assert.ErrorIs(t, err, model.ErrTypeMismatch)
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	fields := model.NewFields()
	inner := model.NewFields()
	inner.Set("x", int64(1))
	fields.Set("nested", inner)
	fields.Set("tags", model.List{"a", "b"})

	rec := model.NewStructured(fields)
	dup := rec.Clone()

	dupFields, err := dup.Structured()
	require.NoError(t, err)
	nested, ok := dupFields.Get("nested")
	require.True(t, ok)
	nested.(*model.Fields).Set("x", int64(2))

	orig, _ := fields.Get("nested")
	got, _ := orig.(*model.Fields).Get("x")
	assert.Equal(t, int64(1), got)
}

func TestFieldsOrderSurvivesUpdates(t *testing.T) {
	t.Parallel()

	fields := model.NewFields()
	fields.Set("a", int64(1))
	fields.Set("b", int64(2))
	fields.Set("c", int64(3))
	fields.Set("b", int64(20))
	assert.Equal(t, []string{"a", "b", "c"}, fields.Keys())

	fields.Delete("b")
	assert.Equal(t, []string{"a", "c"}, fields.Keys())

	fields.Set("b", int64(2))
	assert.Equal(t, []string{"a", "c", "b"}, fields.Keys())
}

func TestFieldsSetNilDeletes(t *testing.T) {
	t.Parallel()

	fields := model.NewFields()
	fields.Set("a", "x")
	fields.Set("a", nil)
	_, ok := fields.Get("a")
	assert.False(t, ok)
	assert.Zero(t, fields.Len())
}

func TestNormalizeWidens(t *testing.T) {
	t.Parallel()

	got, err := model.Normalize(int(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)

	got, err = model.Normalize(float32(1.5))
	require.NoError(t, err)
	assert.Equal(t, float64(1.5), got)

	got, err = model.Normalize(map[string]any{"b": 1, "a": 2})
	require.NoError(t, err)
	fields, ok := got.(*model.Fields)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, fields.Keys())

	_, err = model.Normalize(struct{}{})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrValueKind)
}
