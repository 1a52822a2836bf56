package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStagePrompts(t *testing.T) {
	ClearCache()

	keys := []string{
		"evaluate_system", "evaluate_user",
		"plan_system", "plan_user",
		"implement_system", "implement_user",
		"verify_system", "verify_user",
	}
	for _, key := range keys {
		prompt, err := Get("stages.json", key)
		require.NoError(t, err, "key %s", key)
		assert.NotEmpty(t, prompt, "key %s", key)
	}
}

func TestGetUnknownKey(t *testing.T) {
	_, err := Get("stages.json", "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonexistent")
}

func TestGetUnknownFile(t *testing.T) {
	_, err := Get("missing.json", "evaluate_system")
	require.Error(t, err)
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     map[string]string
		expected string
	}{
		{
			"single placeholder",
			"Rewrite the {{.Section}} section.",
			map[string]string{"Section": "Skills"},
			"Rewrite the Skills section.",
		},
		{
			"repeated placeholder",
			"{{.Name}} and {{.Name}}",
			map[string]string{"Name": "x"},
			"x and x",
		},
		{
			"unmatched placeholder left alone",
			"Target: {{.Target}}",
			map[string]string{"Other": "y"},
			"Target: {{.Target}}",
		},
		{
			"no placeholders",
			"static text",
			map[string]string{"Section": "Skills"},
			"static text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(tt.template, tt.data))
		})
	}
}

func TestListIncludesAllStageKeys(t *testing.T) {
	keys, err := List("stages.json")
	require.NoError(t, err)
	assert.Len(t, keys, 8)
	assert.Contains(t, keys, "verify_user")
}
