package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AUTOENCODE_CODEC or
// AUTOENCODE_KAFKA_BROKERS.
const EnvPrefix = "AUTOENCODE"

// Load builds a Config from, in increasing precedence: DefaultConfig, the YAML
// file at path (or autoencode.yaml in the working directory or
// $HOME/.config/autoencode when path is empty), AUTOENCODE_* environment
// variables, and flags in fs that the user set. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("autoencode")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/autoencode")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that the
// config file does not mention.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("state", string(d.State))
	v.SetDefault("job_name_filter", d.JobNameFilter)
	v.SetDefault("plugin_name_filter", d.PluginNameFilter)
	v.SetDefault("require_tokens", d.RequireTokens)
	v.SetDefault("metadata_prefix", d.MetadataPrefix)
	v.SetDefault("skip_plugins", d.SkipPlugins)
	v.SetDefault("skip_suffixes", d.SkipSuffixes)

	v.SetDefault("codec", string(d.Codec))
	v.SetDefault("quality", d.Quality)
	v.SetDefault("enable_gpu", d.EnableGPU)
	v.SetDefault("max_width", d.MaxWidth)
	v.SetDefault("max_height", d.MaxHeight)
	v.SetDefault("prores_profile", d.ProResProfile)
	v.SetDefault("hap_variant", d.HapVariant)
	v.SetDefault("audio", d.Audio)
	v.SetDefault("audio_bitrate", d.AudioBitrate)

	v.SetDefault("frame_rate", d.FrameRate)
	v.SetDefault("name_rate_rules", d.NameRateRules)
	v.SetDefault("timecode_offsets", d.TimecodeOffsets)

	v.SetDefault("enable_chunking", d.EnableChunking)
	v.SetDefault("chunk_size", d.ChunkSize)
	v.SetDefault("min_chunks", d.MinChunks)
	v.SetDefault("keep_chunks", d.KeepChunks)
	v.SetDefault("concurrent_tasks", d.ConcurrentTasks)
	v.SetDefault("task_chunking", d.TaskChunking)
	v.SetDefault("ceilings.prores", d.Ceilings.ProRes)
	v.SetDefault("ceilings.h264_gpu", d.Ceilings.H264GPU)
	v.SetDefault("ceilings.h264_cpu", d.Ceilings.H264CPU)
	v.SetDefault("ceilings.h265_gpu", d.Ceilings.H265GPU)
	v.SetDefault("ceilings.h265_cpu", d.Ceilings.H265CPU)
	v.SetDefault("ceilings.hap", d.Ceilings.HAP)

	v.SetDefault("input_file", d.InputFile)
	v.SetDefault("output_file", d.OutputFile)
	v.SetDefault("delimiter", d.Delimiter)
	v.SetDefault("input_args", d.InputArgs)
	v.SetDefault("output_args", d.OutputArgs)
	v.SetDefault("priority", d.Priority)
	v.SetDefault("ffmpeg_path", d.FFmpegPath)
	v.SetDefault("ffprobe_path", d.FFprobePath)

	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.event_topic", d.Kafka.EventTopic)
	v.SetDefault("kafka.submit_topic", d.Kafka.SubmitTopic)
	v.SetDefault("kafka.group_id", d.Kafka.GroupID)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)
	v.SetDefault("redis.ttl", d.Redis.TTL)

	v.SetDefault("storage.kind", d.Storage.Kind)
	v.SetDefault("storage.dir", d.Storage.Dir)
	v.SetDefault("storage.endpoint", d.Storage.Endpoint)
	v.SetDefault("storage.access_key", d.Storage.AccessKey)
	v.SetDefault("storage.secret_key", d.Storage.SecretKey)
	v.SetDefault("storage.bucket", d.Storage.Bucket)
	v.SetDefault("storage.use_ssl", d.Storage.UseSSL)

	v.SetDefault("retry.attempts", d.Retry.Attempts)
	v.SetDefault("retry.delay", d.Retry.Delay)
	v.SetDefault("retry.backoff", d.Retry.Backoff)

	v.SetDefault("color", string(d.Color))
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("log_file", d.LogFile)
}
