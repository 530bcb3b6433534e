package llm

import (
	"testing"

	"github.com/BaSui01/modelgate/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// ---------------------------------------------------------------------------
// TemperatureConstraint
// ---------------------------------------------------------------------------

func TestFixedTemperature(t *testing.T) {
	c := FixedTemperature(1.0)

	assert.True(t, c.Validate(1.0))
	assert.False(t, c.Validate(0.7))
	assert.Equal(t, 1.0, c.Clamp(0.0))
	assert.Equal(t, 1.0, c.Clamp(2.0))
	assert.Equal(t, 1.0, c.Default())
}

func TestTemperatureRange(t *testing.T) {
	c, err := TemperatureRange(0, 2, 0.7)
	require.NoError(t, err)

	assert.True(t, c.Validate(0))
	assert.True(t, c.Validate(2))
	assert.True(t, c.Validate(1.3))
	assert.False(t, c.Validate(-0.1))
	assert.False(t, c.Validate(2.1))

	assert.Equal(t, 0.0, c.Clamp(-5))
	assert.Equal(t, 2.0, c.Clamp(5))
	assert.Equal(t, 1.3, c.Clamp(1.3))
	assert.Equal(t, 0.7, c.Default())
}

func TestTemperatureRange_InvalidBounds(t *testing.T) {
	_, err := TemperatureRange(2, 1, 1.5)
	require.Error(t, err, "min above max")
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))

	_, err = TemperatureRange(0, 1, 1.5)
	assert.Error(t, err, "default outside range")

	assert.Panics(t, func() { MustTemperatureRange(2, 1, 1.5) })
}

// Clamp 结果永远落在区间内且通过 Validate
func TestTemperatureRange_ClampProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		min := rapid.Float64Range(0, 1).Draw(t, "min")
		max := rapid.Float64Range(min, 2).Draw(t, "max")
		def := rapid.Float64Range(min, max).Draw(t, "default")

		c, err := TemperatureRange(min, max, def)
		require.NoError(t, err)

		v := rapid.Float64Range(-10, 10).Draw(t, "value")
		clamped := c.Clamp(v)

		if clamped < min || clamped > max {
			t.Fatalf("Clamp(%v) = %v outside [%v, %v]", v, clamped, min, max)
		}
		if !c.Validate(clamped) {
			t.Fatalf("clamped value %v fails Validate", clamped)
		}
	})
}

func TestModelCapabilities_TemperatureOrDefault(t *testing.T) {
	// 未声明约束时回落到 [0,2] 默认 0.7
	var m ModelCapabilities
	c := m.TemperatureOrDefault()
	assert.True(t, c.Validate(2.0))
	assert.False(t, c.Validate(2.5))
	assert.Equal(t, 0.7, c.Default())

	m.Temperature = FixedTemperature(1.0)
	assert.Equal(t, 1.0, m.TemperatureOrDefault().Default())
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

func testModels() []ModelCapabilities {
	return []ModelCapabilities{
		{
			ModelName: "alpha-large",
			Aliases:   []string{"alpha", "large"},
		},
		{
			ModelName: "alpha-small",
			Aliases:   []string{"small"},
		},
	}
}

func TestNewCatalog_ResolvesNamesAndAliases(t *testing.T) {
	c, err := NewCatalog(ProviderCustom, testModels())
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	// 规范名、别名，任意大小写
	for _, name := range []string{"alpha-large", "ALPHA-LARGE", "alpha", "Large"} {
		caps, ok := c.Resolve(name)
		require.True(t, ok, "resolve %q", name)
		assert.Equal(t, "alpha-large", caps.ModelName)
		assert.Equal(t, ProviderCustom, caps.Provider)
	}

	canonical, ok := c.Canonical("SMALL")
	require.True(t, ok)
	assert.Equal(t, "alpha-small", canonical)

	_, ok = c.Resolve("missing")
	assert.False(t, ok)
	assert.True(t, c.Contains("alpha"))
	assert.False(t, c.Contains("beta"))
}

func TestNewCatalog_DuplicateAliasIsConfigError(t *testing.T) {
	models := []ModelCapabilities{
		{ModelName: "alpha", Aliases: []string{"fast"}},
		{ModelName: "beta", Aliases: []string{"FAST"}},
	}
	_, err := NewCatalog(ProviderCustom, models)
	require.Error(t, err)
	assert.Equal(t, types.ErrDuplicateAlias, types.GetErrorCode(err))
}

func TestNewCatalog_AliasCollidingWithModelName(t *testing.T) {
	models := []ModelCapabilities{
		{ModelName: "alpha"},
		{ModelName: "beta", Aliases: []string{"Alpha"}},
	}
	_, err := NewCatalog(ProviderCustom, models)
	require.Error(t, err)
	assert.Equal(t, types.ErrDuplicateAlias, types.GetErrorCode(err))
}

func TestNewCatalog_ModelNameCollidingWithEarlierAlias(t *testing.T) {
	// 声明顺序反过来也要抓到：别名在前，同名规范名在后
	models := []ModelCapabilities{
		{ModelName: "alpha", Aliases: []string{"shadow"}},
		{ModelName: "Shadow"},
	}
	_, err := NewCatalog(ProviderCustom, models)
	require.Error(t, err)
	assert.Equal(t, types.ErrDuplicateAlias, types.GetErrorCode(err))
}

func TestNewCatalog_DuplicateModelName(t *testing.T) {
	models := []ModelCapabilities{
		{ModelName: "alpha"},
		{ModelName: "ALPHA"},
	}
	_, err := NewCatalog(ProviderCustom, models)
	require.Error(t, err)
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
}

func TestNewCatalog_EmptyModelName(t *testing.T) {
	_, err := NewCatalog(ProviderCustom, []ModelCapabilities{{}})
	assert.Error(t, err)
}

func TestCatalog_ListPreservesOrder(t *testing.T) {
	c, err := NewCatalog(ProviderCustom, testModels())
	require.NoError(t, err)

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha-large", list[0].ModelName)
	assert.Equal(t, "alpha-small", list[1].ModelName)
}

func TestCatalog_AliasesFor(t *testing.T) {
	c, err := NewCatalog(ProviderCustom, testModels())
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "large"}, c.AliasesFor("alpha-large"))
	assert.Empty(t, c.AliasesFor("missing"))
}
