package azure

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/modelgate/llm"
	"github.com/BaSui01/modelgate/providers"
	"github.com/BaSui01/modelgate/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(providers.AzureConfig{}, nil, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))

	cfg := providers.AzureConfig{}
	cfg.BaseURL = "https://myresource.openai.azure.com"
	_, err = New(cfg, nil, zap.NewNop())
	require.Error(t, err, "no deployments")
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
}

func TestNew_DeploymentNamesBecomeAliases(t *testing.T) {
	cfg := providers.AzureConfig{
		Deployments: map[string]string{"prod-gpt41": "gpt-4.1"},
	}
	cfg.BaseURL = "https://myresource.openai.azure.com"
	cfg.APIKey = "k"

	p, err := New(cfg, nil, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, llm.ProviderAzure, p.Type())
	// 规范名与部署名都能解析
	assert.True(t, p.ValidateModelName("gpt-4.1"))
	assert.True(t, p.ValidateModelName("PROD-GPT41"))
	assert.False(t, p.ValidateModelName("other"))
}

func TestProvider_WireFormat(t *testing.T) {
	var gotPath, gotVersion, gotAPIKey, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotVersion = r.URL.Query().Get("api-version")
		gotAPIKey = r.Header.Get("api-key")
		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel = body.Model
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "done"}},
			},
		})
	}))
	defer srv.Close()

	cfg := providers.AzureConfig{
		Deployments: map[string]string{"prod-gpt41": "gpt-4.1"},
	}
	cfg.BaseURL = srv.URL
	cfg.APIKey = "azure-key"

	p, err := New(cfg, nil, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	resp, err := p.GenerateContent(context.Background(), &llm.GenerateRequest{
		Model:  "gpt-4.1",
		Prompt: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)

	// 路径与请求体里的模型名都换成部署名，鉴权走 api-key 头
	assert.Equal(t, "/openai/deployments/prod-gpt41/chat/completions", gotPath)
	assert.Equal(t, DefaultAPIVersion, gotVersion)
	assert.Equal(t, "azure-key", gotAPIKey)
	assert.Equal(t, "prod-gpt41", gotModel)
}
