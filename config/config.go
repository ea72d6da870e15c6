package config

import (
	"fmt"
	"time"

	"github.com/open-runtimes/executor/constants"
	"github.com/spf13/viper"
)

// Config is the fully-resolved, validated process configuration.
type Config struct {
	ExecutorSecret      string
	S3Endpoint          string
	S3Bucket            string
	S3AccessKeyID       string
	S3SecretAccessKey   string
	S3Region            string
	Namespace           string
	Port                int
	MaintenanceInterval time.Duration
	InactiveThreshold   time.Duration
	Hostname            string
}

// Init reads environment variables into viper, applies defaults for optional
// keys, and validates that the required keys are present.
func Init() (*Config, error) {
	viper.AutomaticEnv()
	setDefaults()

	if err := requiredEnvVars(); err != nil {
		return nil, fmt.Errorf("failed to initialize config: %s", err)
	}

	return &Config{
		ExecutorSecret:      viper.GetString(constants.EnvExecutorSecret),
		S3Endpoint:          viper.GetString(constants.EnvS3Endpoint),
		S3Bucket:            viper.GetString(constants.EnvS3Bucket),
		S3AccessKeyID:       viper.GetString(constants.EnvS3AccessKeyID),
		S3SecretAccessKey:   viper.GetString(constants.EnvS3SecretAccessKey),
		S3Region:            viper.GetString(constants.EnvS3Region),
		Namespace:           viper.GetString(constants.EnvNamespace),
		Port:                viper.GetInt(constants.EnvPort),
		MaintenanceInterval: viper.GetDuration(constants.EnvMaintenanceInterval),
		InactiveThreshold:   viper.GetDuration(constants.EnvInactiveThreshold),
		Hostname:            viper.GetString(constants.EnvHostname),
	}, nil
}

// setDefaults sets default values for optional configuration.
func setDefaults() {
	viper.SetDefault(constants.EnvNamespace, constants.DefaultNamespace)
	viper.SetDefault(constants.EnvS3Region, constants.DefaultS3Region)
	viper.SetDefault(constants.EnvPort, constants.DefaultPort)
	viper.SetDefault(constants.EnvMaintenanceInterval, constants.DefaultMaintenanceInterval)
	viper.SetDefault(constants.EnvInactiveThreshold, constants.DefaultInactiveThreshold)
	viper.SetDefault(constants.EnvLogLevel, "info")
	viper.SetDefault(constants.EnvLogFormat, "console")
}

// requiredEnvVars checks for the five mandatory environment variables.
func requiredEnvVars() error {
	required := []string{
		constants.EnvExecutorSecret,
		constants.EnvS3Endpoint,
		constants.EnvS3Bucket,
		constants.EnvS3AccessKeyID,
		constants.EnvS3SecretAccessKey,
	}

	var missing []string
	for _, key := range required {
		if !viper.IsSet(key) || viper.GetString(key) == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}

	return nil
}
