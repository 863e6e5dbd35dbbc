package config

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

const (
	AuthAlgorithmHS256Unsafe = "hs-256-unsafe"

	defaultLocalPort      = ":8077"
	defaultSvURL          = "http://localhost:5014/api/sv"
	defaultRequestTimeout = 10 * time.Second
	defaultPollInterval   = 5 * time.Second
	defaultFetchRetries   = 3
	defaultAuthAlgorithm  = AuthAlgorithmHS256Unsafe
	defaultAuthUser       = "sv-dashboard"
	defaultAllowedOrigin  = "http://localhost:3000"

	defaultAmuletName             = "Amulet"
	defaultAmuletNameAcronym      = "AMT"
	defaultNameServiceName        = "Amulet Name Service"
	defaultNameServiceNameAcronym = "ANS"
	defaultNetworkName            = "Splice"
	defaultNetworkFaviconURL      = "https://www.hyperledger.org/hubfs/hyperledgerfavicon.png"
)

const (
	keyPort           = "port"
	keySvURL          = "services.sv.url"
	keyRequestTimeout = "req_timeout"
	keyPollInterval   = "poll_interval"
	keyFetchRetries   = "fetch_retries"
	keyAuthAlgorithm  = "auth.algorithm"
	keyAuthSecret     = "auth.secret"
	keyAuthAudience   = "auth.token_audience"
	keyAuthUser       = "auth.user"
	keyAllowedOrigins = "allowed_origins"

	keyAmuletName             = "splice_instance_names.amulet_name"
	keyAmuletNameAcronym      = "splice_instance_names.amulet_name_acronym"
	keyNameServiceName        = "splice_instance_names.name_service_name"
	keyNameServiceNameAcronym = "splice_instance_names.name_service_name_acronym"
	keyNetworkName            = "splice_instance_names.network_name"
	keyNetworkFaviconURL      = "splice_instance_names.network_favicon_url"
)

func init() {
	bindEnv()
}

// nested keys map to env vars with `_`, e.g. services.sv.url -> SERVICES_SV_URL
func bindEnv() {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// LoadFile reads a YAML config file; env vars still take precedence.
func LoadFile(path string) error {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return errors.New("failed to read the config file: " + err.Error())
	}
	return nil
}

// GetPort returns port prepended with `:`
func GetPort() string {
	port := viper.GetString(keyPort)
	if port == "" {
		return defaultLocalPort
	}
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return port
}

func GetSvURL() string {
	return getString(keySvURL, defaultSvURL)
}

func GetRequestTimeout() time.Duration {
	return getDuration(keyRequestTimeout, defaultRequestTimeout)
}

// GetPollInterval is both the refetch interval and the time a cached result stays fresh.
func GetPollInterval() time.Duration {
	return getDuration(keyPollInterval, defaultPollInterval)
}

func GetFetchRetries() uint64 {
	if viper.GetString(keyFetchRetries) == "" {
		return defaultFetchRetries
	}
	retries := viper.GetInt(keyFetchRetries)
	if retries < 0 {
		return 0
	}
	return uint64(retries)
}

func GetAuthAlgorithm() string {
	return getString(keyAuthAlgorithm, defaultAuthAlgorithm)
}

func GetAuthSecret() string {
	return viper.GetString(keyAuthSecret)
}

func GetAuthAudience() string {
	return viper.GetString(keyAuthAudience)
}

// GetAuthUser is the subject of the tokens minted for the admin API.
func GetAuthUser() string {
	return getString(keyAuthUser, defaultAuthUser)
}

// GetAllowedOrigins reads a YAML list or a comma separated env var.
func GetAllowedOrigins() []string {
	var origins []string
	for _, value := range viper.GetStringSlice(keyAllowedOrigins) {
		for _, origin := range strings.Split(value, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
	}
	if len(origins) == 0 {
		return []string{defaultAllowedOrigin}
	}
	return origins
}

type InstanceNames struct {
	AmuletName             string `json:"amuletName"`
	AmuletNameAcronym      string `json:"amuletNameAcronym"`
	NameServiceName        string `json:"nameServiceName"`
	NameServiceNameAcronym string `json:"nameServiceNameAcronym"`
	NetworkName            string `json:"networkName"`
	NetworkFaviconURL      string `json:"networkFaviconUrl"`
}

func GetInstanceNames() InstanceNames {
	return InstanceNames{
		AmuletName:             getString(keyAmuletName, defaultAmuletName),
		AmuletNameAcronym:      getString(keyAmuletNameAcronym, defaultAmuletNameAcronym),
		NameServiceName:        getString(keyNameServiceName, defaultNameServiceName),
		NameServiceNameAcronym: getString(keyNameServiceNameAcronym, defaultNameServiceNameAcronym),
		NetworkName:            getString(keyNetworkName, defaultNetworkName),
		NetworkFaviconURL:      getString(keyNetworkFaviconURL, defaultNetworkFaviconURL),
	}
}

// Validate reports every configuration problem at once.
func Validate() error {
	var err error

	if algorithm := GetAuthAlgorithm(); algorithm != AuthAlgorithmHS256Unsafe {
		err = multierr.Append(err, errors.New("unsupported auth algorithm: "+algorithm))
	}
	if GetAuthSecret() == "" {
		err = multierr.Append(err, errors.New(keyAuthSecret+" is missing"))
	}
	if GetAuthAudience() == "" {
		err = multierr.Append(err, errors.New(keyAuthAudience+" is missing"))
	}

	svURL, parseErr := url.Parse(GetSvURL())
	if parseErr != nil {
		err = multierr.Append(err, errors.New("invalid "+keySvURL+": "+parseErr.Error()))
	} else if svURL.Scheme != "http" && svURL.Scheme != "https" {
		err = multierr.Append(err, errors.New(keySvURL+" needs an http or https scheme"))
	}

	for _, origin := range GetAllowedOrigins() {
		if origin == "*" {
			err = multierr.Append(err, errors.New(keyAllowedOrigins+" can't contain * as credentials are allowed"))
		}
	}

	if GetPollInterval() <= 0 {
		err = multierr.Append(err, errors.New(keyPollInterval+" needs to be positive"))
	}

	return err
}

func getString(key, fallback string) string {
	if value := viper.GetString(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := viper.GetString(key)
	if value == "" {
		return fallback
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return duration
}
