package filter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_UnmarshalJSON_NumericDefaultsShowTrue(t *testing.T) {
	var f Filter
	err := json.Unmarshal([]byte(`{"columnName":"value","filterValue":{"exclude":false}}`), &f)
	require.NoError(t, err)

	require.NotNil(t, f.Value.Numeric)
	assert.True(t, f.Value.Numeric.ShowEPS)
	assert.True(t, f.Value.Numeric.ShowNA)
	assert.True(t, f.Value.Numeric.ShowPosInf)
	assert.True(t, f.Value.Numeric.ShowNegInf)
	assert.True(t, f.Value.Numeric.ShowUNDF)
}

func TestFilter_UnmarshalJSON_NumericExplicitFalseOverridesDefault(t *testing.T) {
	var f Filter
	err := json.Unmarshal([]byte(`{"columnName":"value","filterValue":{"exclude":false,"showEPS":false}}`), &f)
	require.NoError(t, err)

	require.NotNil(t, f.Value.Numeric)
	assert.False(t, f.Value.Numeric.ShowEPS)
	assert.True(t, f.Value.Numeric.ShowNA)
}

func TestFilter_UnmarshalJSON_TextHasNoShowDefaults(t *testing.T) {
	var f Filter
	err := json.Unmarshal([]byte(`{"columnName":"dim_1","filterValue":{"selectedValues":["a"]}}`), &f)
	require.NoError(t, err)

	require.NotNil(t, f.Value.Text)
	assert.Equal(t, []string{"a"}, f.Value.Text.SelectedValues)
}
