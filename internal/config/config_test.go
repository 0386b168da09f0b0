package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:  "expand single env var",
			input: "api_key: ${TEST_API_KEY}",
			envVars: map[string]string{
				"TEST_API_KEY": "test_key_123",
			},
			expected: "api_key: test_key_123",
		},
		{
			name:  "expand multiple env vars",
			input: "api_key: ${API_KEY}\nsecret: ${SECRET_KEY}",
			envVars: map[string]string{
				"API_KEY":    "key_value",
				"SECRET_KEY": "secret_value",
			},
			expected: "api_key: key_value\nsecret: secret_value",
		},
		{
			name:     "missing env var returns empty string",
			input:    "api_key: ${MISSING_VAR}",
			envVars:  map[string]string{},
			expected: "api_key: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}

			result := expandEnvVars(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestLoadConfigWithEnvVars(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "config-test-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	configContent := `app:
  active_venues: ["bybit"]

venues:
  bybit:
    type: cex
    api_key: "${TEST_BYBIT_API_KEY}"
    api_secret: "${TEST_BYBIT_API_SECRET}"
    use_testnet: true
    endpoints:
      testnet:
        rest_base_url: "https://api-testnet.bybit.com"
        ws_url: "wss://stream-testnet.bybit.com/v5/private"

ingress:
  listen_addr: "127.0.0.1:5600"

egress:
  listen_addr: "127.0.0.1:5601"

system:
  log_level: "INFO"
`

	_, err = tmpFile.Write([]byte(configContent))
	require.NoError(t, err)
	tmpFile.Close()

	os.Setenv("TEST_BYBIT_API_KEY", "test_api_key_from_env")
	os.Setenv("TEST_BYBIT_API_SECRET", "test_secret_from_env")
	defer os.Unsetenv("TEST_BYBIT_API_KEY")
	defer os.Unsetenv("TEST_BYBIT_API_SECRET")

	cfg, err := LoadConfig(tmpFile.Name())
	require.NoError(t, err, "LoadConfig() error")

	bybit := cfg.Venues["bybit"]
	assert.Equal(t, Secret("test_api_key_from_env"), bybit.APIKey)
	assert.Equal(t, Secret("test_secret_from_env"), bybit.APISecret)
}

func TestResolveCredentialsFallsBackToEnv(t *testing.T) {
	os.Setenv("LATENTSPEED_BYBIT_API_KEY", "env_key")
	os.Setenv("LATENTSPEED_BYBIT_API_SECRET", "env_secret")
	defer os.Unsetenv("LATENTSPEED_BYBIT_API_KEY")
	defer os.Unsetenv("LATENTSPEED_BYBIT_API_SECRET")

	cfg := &Config{
		Venues: map[string]VenueConfig{
			"bybit": {Type: VenueTypeCEX},
		},
	}
	cfg.ResolveCredentials()

	assert.Equal(t, Secret("env_key"), cfg.Venues["bybit"].APIKey)
	assert.Equal(t, Secret("env_secret"), cfg.Venues["bybit"].APISecret)
}

func TestApplyCLIOverrideTakesPrecedence(t *testing.T) {
	cfg := &Config{Venues: map[string]VenueConfig{
		"bybit": {Type: VenueTypeCEX, APIKey: "from_env"},
	}}
	cfg.ApplyCLIOverride("bybit", "from_cli", "from_cli_secret")

	assert.Equal(t, Secret("from_cli"), cfg.Venues["bybit"].APIKey)
	assert.Equal(t, Secret("from_cli_secret"), cfg.Venues["bybit"].APISecret)
	assert.Contains(t, cfg.App.ActiveVenues, "bybit")
}

func TestEndpointForSelectsEnvironment(t *testing.T) {
	venue := VenueConfig{
		UseTestnet: true,
		Endpoints: map[Environment]EndpointSet{
			EnvMainnet: {RESTBaseURL: "https://mainnet"},
			EnvTestnet: {RESTBaseURL: "https://testnet"},
		},
	}
	set, err := venue.EndpointFor()
	require.NoError(t, err)
	assert.Equal(t, "https://testnet", set.RESTBaseURL)

	venue.UseTestnet = false
	set, err = venue.EndpointFor()
	require.NoError(t, err)
	assert.Equal(t, "https://mainnet", set.RESTBaseURL)
}

func TestValidateRejectsMissingCEXCredentials(t *testing.T) {
	cfg := &Config{
		App: AppConfig{ActiveVenues: []string{"bybit"}},
		Venues: map[string]VenueConfig{
			"bybit": {
				Type: VenueTypeCEX,
				Endpoints: map[Environment]EndpointSet{
					EnvMainnet: {RESTBaseURL: "https://api.bybit.com"},
				},
			},
		},
		System: SystemConfig{LogLevel: "INFO"},
	}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsMissingDEXCredentials(t *testing.T) {
	cfg := &Config{
		App: AppConfig{ActiveVenues: []string{"hyperliquid"}},
		Venues: map[string]VenueConfig{
			"hyperliquid": {
				Type: VenueTypeDEX,
				Endpoints: map[Environment]EndpointSet{
					EnvMainnet: {RESTBaseURL: "https://api.hyperliquid.xyz"},
				},
			},
		},
		System: SystemConfig{LogLevel: "INFO"},
	}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestConfig_StringRedactsSecrets(t *testing.T) {
	cfg := &Config{
		Venues: map[string]VenueConfig{
			"bybit": {
				Type:      VenueTypeCEX,
				APIKey:    Secret("my_super_secret_api_key"),
				APISecret: Secret("my_super_secret_api_secret"),
			},
		},
	}
	output := cfg.String()

	assert.NotContains(t, output, "my_super_secret_api_key")
	assert.NotContains(t, output, "my_super_secret_api_secret")
	assert.Contains(t, output, "REDACTED")
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}
