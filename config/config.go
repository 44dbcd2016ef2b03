// Package config provides the configuration keys, defaults and loading helpers of an askscot instance.
// Configuration is held in a viper instance and read once at startup
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Configuration keys
const (
	// Slack bot token (xoxb-), string value. Required
	BotTokenKey = "botToken"

	// Slack app-level token (xapp-) used by socket mode, string value. Required
	AppTokenKey = "appToken"

	// Language model API key, string value. Optional: answering with AI is disabled when absent
	AIAPIKeyKey = "aiApiKey"

	// Debug mode, boolean value
	DebugKey = "debug"

	// Time location used when answering with the current date and time. Defaults to Local
	TimeLocationKey = "timeLocation"

	// Reply to mentions in threads, boolean value. Defaults to false
	ThreadedRepliesKey = "threadedReplies"

	// Broadcast threaded replies to the channel, boolean value. Defaults to false
	BroadcastThreadedRepliesKey = "broadcastThreadedReplies"

	// Name of the echo slash command. Defaults to /echo
	EchoCommandKey = "echoCommand"

	// Number of event ids remembered to drop redelivered events, int value. Defaults to 5000
	ProcessedEventCacheSizeKey = "processedEventCacheSize"

	// Number of event processing workers, must be a power of two. Defaults to 16
	MessageProcessingPartitionCount = "advanced.messageProcessingPartitionCount"

	// Size of each worker's event queue. Defaults to 10
	MessageProcessingBufferedMessageCount = "advanced.messageProcessingBufferedMessageCount"
)

// Environment variables bound to configuration keys
const (
	BotTokenEnv = "SLACK_BOT_TOKEN"
	AppTokenEnv = "SLACK_APP_TOKEN"
	AIAPIKeyEnv = "ANTHROPIC_API_KEY"
)

const (
	defaultTimeLocation            = "Local"
	defaultEchoCommand             = "/echo"
	defaultProcessedEventCacheSize = 5000
	defaultPartitionCount          = 16
	defaultBufferedMessageCount    = 10
)

var (
	// ErrMissingBotToken is returned by ValidateCredentials when no bot token is configured
	ErrMissingBotToken = errors.New(BotTokenEnv + " is required")

	// ErrMissingAppToken is returned by ValidateCredentials when no app-level token is configured
	ErrMissingAppToken = errors.New(AppTokenEnv + " is required")
)

// dotEnvFiles are the files loaded by LoadDotEnv, in order
var dotEnvFiles = []string{".env", ".env.local"}

// NewViperWithDefaults creates a new viper instance with the default values set
func NewViperWithDefaults() (v *viper.Viper) {
	v = viper.New()
	return LayerConfigWithDefaults(v)
}

// LayerConfigWithDefaults sets the default values on a viper instance. Values already set
// on the instance take precedence over those defaults
func LayerConfigWithDefaults(v *viper.Viper) *viper.Viper {
	v.SetDefault(DebugKey, false)
	v.SetDefault(TimeLocationKey, defaultTimeLocation)
	v.SetDefault(ThreadedRepliesKey, false)
	v.SetDefault(BroadcastThreadedRepliesKey, false)
	v.SetDefault(EchoCommandKey, defaultEchoCommand)
	v.SetDefault(ProcessedEventCacheSizeKey, defaultProcessedEventCacheSize)
	v.SetDefault(MessageProcessingPartitionCount, defaultPartitionCount)
	v.SetDefault(MessageProcessingBufferedMessageCount, defaultBufferedMessageCount)

	return v
}

// BindEnv binds the credential keys to their environment variables
func BindEnv(v *viper.Viper) (err error) {
	bindings := map[string]string{
		BotTokenKey: BotTokenEnv,
		AppTokenKey: AppTokenEnv,
		AIAPIKeyKey: AIAPIKeyEnv,
	}

	for key, env := range bindings {
		if err = v.BindEnv(key, env); err != nil {
			return errors.Wrapf(err, "failed to bind [%s] to env [%s]", key, env)
		}
	}

	return nil
}

// LoadDotEnv loads the .env and .env.local files from the working directory when present.
// Variables already set in the environment are never overwritten
func LoadDotEnv() (err error) {
	for _, f := range dotEnvFiles {
		if _, statErr := os.Stat(f); os.IsNotExist(statErr) {
			continue
		}

		if err = godotenv.Load(f); err != nil {
			return errors.Wrapf(err, "failed to load env file [%s]", f)
		}
	}

	return nil
}

// ReadConfigFile reads the configuration file at path (with ~ expanded) into v
func ReadConfigFile(v *viper.Viper, path string) (err error) {
	fullPath, err := homedir.Expand(path)
	if err != nil {
		return errors.Wrapf(err, "invalid configuration path [%s]", path)
	}

	v.SetConfigFile(fullPath)
	if err = v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read configuration file [%s]", fullPath)
	}

	return nil
}

// ValidateCredentials returns an error if either of the required slack tokens is missing
func ValidateCredentials(v *viper.Viper) (err error) {
	if v.GetString(BotTokenKey) == "" {
		return ErrMissingBotToken
	}

	if v.GetString(AppTokenKey) == "" {
		return ErrMissingAppToken
	}

	return nil
}

// AIEnabled returns true if a language model API key is configured
func AIEnabled(v *viper.Viper) bool {
	return v.GetString(AIAPIKeyKey) != ""
}

// GetTimeLocation returns the time location set at TimeLocationKey
func GetTimeLocation(v *viper.Viper) (timeLoc *time.Location, err error) {
	timeLoc, err = time.LoadLocation(v.GetString(TimeLocationKey))
	if err != nil {
		return nil, errors.Wrapf(err, "unknown time location [%s]", v.GetString(TimeLocationKey))
	}

	return timeLoc, nil
}
