package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "GROUPWARE"

// Flags defines the server flags. Flag names are the config keys with dashes
// instead of underscores.
func Flags() *pflag.FlagSet {
	var d Config
	d.LoadDefaults()

	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "config file (json, yaml or toml)")

	fs.StringP("endpoint-addr-grpc", "a", d.EndpointAddrGRPC, "address and port of the gRPC endpoint")
	fs.String("endpoint-addr-http", d.EndpointAddrHTTP, "address and port of the health endpoint")
	fs.StringP("database-dsn", "d", d.DatabaseDSN, "database DSN")
	fs.Int("database-max-open-conns", d.DatabaseMaxOpenConns, "connection pool size")
	fs.Int("database-max-idle-conns", d.DatabaseMaxIdleConns, "idle connections kept in the pool")
	fs.StringP("secret-key", "s", d.SecretKey, "identity token signing key")
	fs.Duration("access-token-validity-duration", d.AccessTokenValidityDuration, "lifetime of minted tokens")
	fs.Int("minimum-search-characters", d.MinimumSearchCharacters, "shortest accepted search pattern, wildcards excluded")
	fs.Int("max-search-results", d.MaxSearchResults, "search result cap, 0 for none")
	fs.Int("by-ids-block-size", d.ByIDsBlockSize, "ids per store query in batch lookups")
	fs.Duration("folder-cache-ttl", d.FolderCacheTTL, "folder cache entry lifetime, 0 keeps entries until invalidated")
	fs.Bool("strict-notifications", d.StrictNotifications, "report event delivery failures to the caller")
	fs.String("log-level", d.LogLevel, "debug, info, warn or error")
	fs.String("log-format", d.LogFormat, "json or text")
	fs.String("log-backend", d.LogBackend, "slog or zerolog")
	fs.String("log-file", d.LogFile, "rotated log file, stdout only when empty")
	fs.String("s3-access-key", d.S3AccessKey, "event archive access key")
	fs.String("s3-secret-key", d.S3SecretKey, "event archive secret key")
	fs.StringP("s3-bucket", "b", d.S3Bucket, "event archive bucket, archive disabled when empty")
	fs.String("s3-region", d.S3Region, "event archive region")
	fs.String("s3-base-endpoint", d.S3BaseEndpoint, "S3 compatible endpoint")
	fs.String("s3-prefix", d.S3Prefix, "event archive key prefix")
	return fs
}

// Load merges defaults, the config file named by --config, the environment
// and the flags set on fs. fs must come from Flags and be parsed already; nil
// skips flags and the config file.
func Load(fs *pflag.FlagSet) (*Config, error) {
	var d Config
	d.LoadDefaults()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	setDefaults(v, &d)

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			if f.Name == "config" || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}

		path, err := fs.GetString("config")
		if err != nil {
			return nil, err
		}
		if path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so that AutomaticEnv and Unmarshal see it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("endpoint_addr_grpc", d.EndpointAddrGRPC)
	v.SetDefault("endpoint_addr_http", d.EndpointAddrHTTP)
	v.SetDefault("database_dsn", d.DatabaseDSN)
	v.SetDefault("database_max_open_conns", d.DatabaseMaxOpenConns)
	v.SetDefault("database_max_idle_conns", d.DatabaseMaxIdleConns)
	v.SetDefault("secret_key", d.SecretKey)
	v.SetDefault("access_token_validity_duration", d.AccessTokenValidityDuration)
	v.SetDefault("minimum_search_characters", d.MinimumSearchCharacters)
	v.SetDefault("max_search_results", d.MaxSearchResults)
	v.SetDefault("by_ids_block_size", d.ByIDsBlockSize)
	v.SetDefault("folder_cache_ttl", d.FolderCacheTTL)
	v.SetDefault("strict_notifications", d.StrictNotifications)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("log_backend", d.LogBackend)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("s3_access_key", d.S3AccessKey)
	v.SetDefault("s3_secret_key", d.S3SecretKey)
	v.SetDefault("s3_bucket", d.S3Bucket)
	v.SetDefault("s3_region", d.S3Region)
	v.SetDefault("s3_base_endpoint", d.S3BaseEndpoint)
	v.SetDefault("s3_prefix", d.S3Prefix)
}
