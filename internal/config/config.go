// Package config holds the global plugin configuration: defaults, file/env/flag
// loading, and validation. The values here are the lowest-precedence layer of
// settings resolution; per-job tokens and UI metadata override them.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/backmassage/autoencode/internal/media"
)

// --- Enum types for validated string fields ---

// TriggerMode decides when a finished render job produces a transcode.
type TriggerMode string

const (
	TriggerDisabled      TriggerMode = "disabled"       // Never fire.
	TriggerOptIn         TriggerMode = "opt-in"         // Fire only on an explicit enable or trigger token.
	TriggerTokenBased    TriggerMode = "token-based"    // Fire when a trigger or codec token is present (default).
	TriggerGlobalEnabled TriggerMode = "global-enabled" // Fire for every job passing the name/plugin filters.
)

// Codec is the delivery codec family.
type Codec string

const (
	CodecH265   Codec = "h265"   // HEVC in mp4 (default).
	CodecH264   Codec = "h264"   // AVC in mp4.
	CodecProRes Codec = "prores" // Apple ProRes in mov; needs a profile tier.
	CodecHAP    Codec = "hap"    // HAP in mov; needs a variant.
)

// Codecs lists every supported codec in declaration order.
var Codecs = []Codec{CodecH265, CodecH264, CodecProRes, CodecHAP}

// ProResProfiles are the accepted ProRes tiers, lowest to highest.
var ProResProfiles = []string{"proxy", "lt", "422", "422hq", "4444", "4444xq"}

// HapVariants are the accepted HAP texture formats.
var HapVariants = []string{"hap", "alpha", "q"}

// ParseCodec maps a user-facing codec name (including common aliases) to a Codec.
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "h265", "hevc", "x265":
		return CodecH265, nil
	case "h264", "avc", "x264":
		return CodecH264, nil
	case "prores":
		return CodecProRes, nil
	case "hap":
		return CodecHAP, nil
	}
	return "", fmt.Errorf("invalid codec %q (use 'h265', 'h264', 'prores' or 'hap')", s)
}

// ParseTriggerMode maps a state name to a TriggerMode.
func ParseTriggerMode(s string) (TriggerMode, error) {
	switch TriggerMode(strings.ToLower(strings.TrimSpace(s))) {
	case TriggerDisabled:
		return TriggerDisabled, nil
	case TriggerOptIn:
		return TriggerOptIn, nil
	case TriggerTokenBased:
		return TriggerTokenBased, nil
	case TriggerGlobalEnabled:
		return TriggerGlobalEnabled, nil
	}
	return "", fmt.Errorf("invalid state %q (use 'disabled', 'opt-in', 'token-based' or 'global-enabled')", s)
}

// ColorMode controls ANSI color in terminal output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Color when stdout is a TTY and NO_COLOR is unset.
	ColorAlways ColorMode = "always" // Force color.
	ColorNever  ColorMode = "never"  // Plain text.
)

// PriorityInherit keeps the originating render job's priority on every node.
const PriorityInherit = -1

// Kafka configures event intake and graph submission topics.
type Kafka struct {
	Brokers     []string `mapstructure:"brokers"`
	EventTopic  string   `mapstructure:"event_topic"`
	SubmitTopic string   `mapstructure:"submit_topic"`
	GroupID     string   `mapstructure:"group_id"`
}

// Redis configures the submission ledger.
type Redis struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// Storage configures where compiled graph manifests are archived.
// Kind is "" (disabled), "fs" or "minio".
type Storage struct {
	Kind      string `mapstructure:"kind"`
	Dir       string `mapstructure:"dir"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Ceilings cap the concurrent tasks of one graph per codec, whatever
// ConcurrentTasks asks for. ProRes is memory bound and NVENC sessions are
// limited per GPU, so those ceilings are low.
type Ceilings struct {
	ProRes  int `mapstructure:"prores"`   // Default: 1.
	H264GPU int `mapstructure:"h264_gpu"` // Default: 2.
	H264CPU int `mapstructure:"h264_cpu"` // Default: 4.
	H265GPU int `mapstructure:"h265_gpu"` // Default: 2.
	H265CPU int `mapstructure:"h265_cpu"` // Default: 4.
	HAP     int `mapstructure:"hap"`      // Default: 4.
}

// Retry is the backoff applied to transport operations (fetch, commit, publish).
type Retry struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
	Backoff  float64       `mapstructure:"backoff"`
}

// Config holds all global settings. It is populated by [DefaultConfig] and
// then overlaid by [Load] from file, environment and flags before being
// passed (by pointer) to the packages that need it.
type Config struct {
	// Trigger.
	State            TriggerMode `mapstructure:"state"`              // Default: "token-based".
	JobNameFilter    string      `mapstructure:"job_name_filter"`    // Regex; empty matches everything.
	PluginNameFilter string      `mapstructure:"plugin_name_filter"` // Regex; empty matches everything.
	RequireTokens    bool        `mapstructure:"require_tokens"`     // Default: true. Global mode still needs a token.
	MetadataPrefix   string      `mapstructure:"metadata_prefix"`    // Default: "AutoEncode".
	SkipPlugins      []string    `mapstructure:"skip_plugins"`       // Plugins whose jobs are never transcoded.
	SkipSuffixes     []string    `mapstructure:"skip_suffixes"`      // Job name suffixes of our own jobs.

	// Encoding defaults.
	Codec         Codec  `mapstructure:"codec"`          // Default: "h265".
	Quality       int    `mapstructure:"quality"`        // CRF (CPU) or CQ (GPU). Default: 23.
	EnableGPU     bool   `mapstructure:"enable_gpu"`     // Default: true. NVENC for H.264/H.265.
	MaxWidth      int    `mapstructure:"max_width"`      // Default: 8192.
	MaxHeight     int    `mapstructure:"max_height"`     // Default: 4320.
	ProResProfile string `mapstructure:"prores_profile"` // Default: "422hq".
	HapVariant    string `mapstructure:"hap_variant"`    // Default: "hap".
	Audio         bool   `mapstructure:"audio"`          // Search for and mux a sidecar audio file.
	AudioBitrate  string `mapstructure:"audio_bitrate"`  // Default: "192k" (AAC in mp4 only).

	// Frame rate detection.
	FrameRate       string   `mapstructure:"frame_rate"`       // Override; empty means detect.
	NameRateRules   []string `mapstructure:"name_rate_rules"`  // Order of name-pattern rules; empty keeps the built-in order.
	TimecodeOffsets []int    `mapstructure:"timecode_offsets"` // Frame offsets sampled for timecode deltas.

	// Chunking.
	EnableChunking  bool `mapstructure:"enable_chunking"`  // Default: true.
	ChunkSize       int  `mapstructure:"chunk_size"`       // Default: 150 frames.
	MinChunks       int  `mapstructure:"min_chunks"`       // Default: 2.
	KeepChunks      bool `mapstructure:"keep_chunks"`      // Keep intermediates after concat.
	ConcurrentTasks int  `mapstructure:"concurrent_tasks"` // Default: 3. Capped per codec.
	// TaskChunking submits the chunks as tasks of one farm job instead of
	// one job per chunk. It chunks even when EnableChunking is off.
	TaskChunking bool     `mapstructure:"task_chunking"`
	Ceilings     Ceilings `mapstructure:"ceilings"`

	// Paths and templates.
	InputFile  string `mapstructure:"input_file"`  // Template; empty uses the job's first output.
	OutputFile string `mapstructure:"output_file"` // Template; empty derives from the input name.
	Delimiter  string `mapstructure:"delimiter"`   // One or two characters. Default: "<>".
	InputArgs  string `mapstructure:"input_args"`  // Extra ffmpeg args placed before -i.
	OutputArgs string `mapstructure:"output_args"` // Extra ffmpeg args placed before the output.

	// Scheduling.
	Priority int `mapstructure:"priority"` // Default: -1 (inherit from the render job).

	// Executables (empty: $FFMPEG_PATH / $FFPROBE_PATH, then PATH).
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	FFprobePath string `mapstructure:"ffprobe_path"`

	// Transport and storage.
	Kafka   Kafka   `mapstructure:"kafka"`
	Redis   Redis   `mapstructure:"redis"`
	Storage Storage `mapstructure:"storage"`
	Retry   Retry   `mapstructure:"retry"`

	// Display and logging.
	Color   ColorMode `mapstructure:"color"` // Default: "auto".
	Verbose bool      `mapstructure:"verbose"`
	LogFile string    `mapstructure:"log_file"` // Optional JSON log file.
}

// DefaultConfig returns a Config with all defaults. Used as the base before
// [Load] applies file, environment and flag overrides.
func DefaultConfig() Config {
	return Config{
		State:           TriggerTokenBased,
		RequireTokens:   true,
		MetadataPrefix:  "AutoEncode",
		SkipPlugins:     []string{"FFmpeg", "AutoFFmpegTask", "AutoEncode"},
		SkipSuffixes:    []string{"_Encode", "_Concat"},
		Codec:           CodecH265,
		Quality:         23,
		EnableGPU:       true,
		MaxWidth:        8192,
		MaxHeight:       4320,
		ProResProfile:   "422hq",
		HapVariant:      "hap",
		AudioBitrate:    "192k",
		TimecodeOffsets: []int{1, 2, 3, 30, 60, 120, 300},
		EnableChunking:  true,
		ChunkSize:       150,
		MinChunks:       2,
		ConcurrentTasks: 3,
		Ceilings: Ceilings{
			ProRes:  1,
			H264GPU: 2,
			H264CPU: 4,
			H265GPU: 2,
			H265CPU: 4,
			HAP:     4,
		},
		Delimiter: "<>",
		Priority:  PriorityInherit,
		Color:     ColorAuto,
		Kafka: Kafka{
			Brokers:     []string{"localhost:9092"},
			EventTopic:  "render.completed",
			SubmitTopic: "farm.submissions",
			GroupID:     "autoencode",
		},
		Redis: Redis{
			Addr:      "localhost:6379",
			KeyPrefix: "autoencode",
			TTL:       7 * 24 * time.Hour,
		},
		Storage: Storage{
			Bucket: "autoencode-graphs",
		},
		Retry: Retry{
			Attempts: 3,
			Delay:    500 * time.Millisecond,
			Backoff:  2,
		},
	}
}

// Validate checks enum fields, numeric ranges and filter regexes.
func (c *Config) Validate() error {
	switch c.State {
	case TriggerDisabled, TriggerOptIn, TriggerTokenBased, TriggerGlobalEnabled:
		// valid
	default:
		return errors.New("invalid state (use 'disabled', 'opt-in', 'token-based' or 'global-enabled')")
	}

	switch c.Codec {
	case CodecH265, CodecH264, CodecProRes, CodecHAP:
		// valid
	default:
		return errors.New("invalid codec (use 'h265', 'h264', 'prores' or 'hap')")
	}

	switch c.Color {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return errors.New("invalid color mode (use 'auto', 'always' or 'never')")
	}

	if c.Quality < 0 || c.Quality > 51 {
		return fmt.Errorf("quality must be between 0 and 51 (got %d)", c.Quality)
	}
	if c.MaxWidth < 2 || c.MaxHeight < 2 {
		return fmt.Errorf("max resolution must be at least 2x2 (got %dx%d)", c.MaxWidth, c.MaxHeight)
	}
	if c.ProResProfile != "" && !contains(ProResProfiles, c.ProResProfile) {
		return fmt.Errorf("invalid ProRes profile %q (use one of %s)", c.ProResProfile, strings.Join(ProResProfiles, ", "))
	}
	if c.HapVariant != "" && !contains(HapVariants, c.HapVariant) {
		return fmt.Errorf("invalid HAP variant %q (use one of %s)", c.HapVariant, strings.Join(HapVariants, ", "))
	}
	if c.FrameRate != "" {
		if _, err := media.ParseRate(c.FrameRate); err != nil {
			return fmt.Errorf("invalid frame rate override %q", c.FrameRate)
		}
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive (got %d)", c.ChunkSize)
	}
	if c.MinChunks < 1 {
		return fmt.Errorf("min chunks must be at least 1 (got %d)", c.MinChunks)
	}
	if c.ConcurrentTasks < 1 {
		return fmt.Errorf("concurrent tasks must be at least 1 (got %d)", c.ConcurrentTasks)
	}
	for _, codec := range Codecs {
		for _, gpu := range []bool{false, true} {
			if n := c.CodecCeiling(codec, gpu); n < 1 {
				return fmt.Errorf("%s concurrency ceiling must be at least 1 (got %d)", codec, n)
			}
		}
	}
	if n := len([]rune(c.Delimiter)); n != 1 && n != 2 {
		return fmt.Errorf("delimiter must be one or two characters (got %q)", c.Delimiter)
	}
	if c.Priority < PriorityInherit || c.Priority > 100 {
		return fmt.Errorf("priority must be -1 (inherit) or 0-100 (got %d)", c.Priority)
	}
	if _, err := normalizeAudioBitrate(c.AudioBitrate); err != nil {
		return err
	}
	for name, pattern := range map[string]string{"job name filter": c.JobNameFilter, "plugin name filter": c.PluginNameFilter} {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, pattern, err)
		}
	}
	switch c.Storage.Kind {
	case "", "fs", "minio":
		// valid
	default:
		return fmt.Errorf("invalid storage kind %q (use 'fs' or 'minio')", c.Storage.Kind)
	}
	return nil
}

// CodecCeiling is the most parallel tasks of one graph the given codec may
// run, from Ceilings. The GPU ceilings apply to H.264/H.265 only.
func (c *Config) CodecCeiling(codec Codec, gpu bool) int {
	switch codec {
	case CodecProRes:
		return c.Ceilings.ProRes
	case CodecHAP:
		return c.Ceilings.HAP
	case CodecH264:
		if gpu {
			return c.Ceilings.H264GPU
		}
		return c.Ceilings.H264CPU
	case CodecH265:
		if gpu {
			return c.Ceilings.H265GPU
		}
		return c.Ceilings.H265CPU
	}
	return 1
}

// NormalizedAudioBitrate returns AudioBitrate in "<n>k" form.
func (c *Config) NormalizedAudioBitrate() string {
	s, err := normalizeAudioBitrate(c.AudioBitrate)
	if err != nil {
		return "192k"
	}
	return s
}

// normalizeAudioBitrate validates and canonicalizes user bitrate input.
// Accepted forms: "192", "192k", "192K", "192kbps". Output is "<n>k".
func normalizeAudioBitrate(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", errors.New("audio bitrate must not be empty")
	}
	if strings.HasSuffix(s, "kbps") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "kbps"))
	} else if strings.HasSuffix(s, "k") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "k"))
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return "", fmt.Errorf("invalid audio bitrate %q (use positive Kbps value, e.g. 192k)", raw)
	}
	return fmt.Sprintf("%dk", n), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
