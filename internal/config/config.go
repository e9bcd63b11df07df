package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Matcher backends.
const (
	BackendAuto      = "auto"
	BackendEmbedding = "embedding"
	BackendHash      = "hash"
)

type Config struct {
	Faces    FacesConfig    `yaml:"faces"`
	Camera   CameraConfig   `yaml:"camera"`
	Detector DetectorConfig `yaml:"detector"`
	Matcher  MatcherConfig  `yaml:"matcher"`
	Capture  CaptureConfig  `yaml:"capture"`
	Log      LogConfig      `yaml:"log"`
	Web      WebConfig      `yaml:"web"`
}

type FacesConfig struct {
	Dir string `yaml:"dir"` // directory holding one <name>.jpg per enrolled identity
}

type CameraConfig struct {
	Device string `yaml:"device"` // device index ("0") or a capture URL/file path
}

// DetectorConfig holds the Haar cascade parameters. They are fixed for the
// lifetime of the process.
type DetectorConfig struct {
	CascadePath  string  `yaml:"cascade_path"`
	ScaleFactor  float64 `yaml:"scale_factor"`
	MinNeighbors int     `yaml:"min_neighbors"`
	MinSize      int     `yaml:"min_size"` // pixels, applied to both width and height
}

type MatcherConfig struct {
	Backend           string  `yaml:"backend"`            // auto, embedding or hash
	EmbeddingURL      string  `yaml:"embedding_url"`      // face embedding service, e.g. http://localhost:8000
	DistanceThreshold float64 `yaml:"distance_threshold"` // max cosine distance for the embedding backend
	HashThreshold     int     `yaml:"hash_threshold"`     // max Hamming distance for the hash backend
}

// ResolvedBackend returns the backend to use. "auto" picks the embedding
// service when a URL is configured and the local hash matcher otherwise.
func (c *MatcherConfig) ResolvedBackend() string {
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case BackendEmbedding:
		return BackendEmbedding
	case BackendHash:
		return BackendHash
	default:
		if c.EmbeddingURL != "" {
			return BackendEmbedding
		}
		return BackendHash
	}
}

type CaptureConfig struct {
	RecognitionCooldownMs int `yaml:"recognition_cooldown_ms"`
	FrameIntervalMs       int `yaml:"frame_interval_ms"`
}

// RecognitionCooldown returns the minimum interval between two verification attempts.
func (c *CaptureConfig) RecognitionCooldown() time.Duration {
	return time.Duration(c.RecognitionCooldownMs) * time.Millisecond
}

// FrameInterval returns the pause between two processed frames.
func (c *CaptureConfig) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMs) * time.Millisecond
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Defaults returns the embedded defaults without any environment overrides.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// envString returns the environment variable or the default when unset or empty.
// envList splits a comma-separated variable, dropping empty entries.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func Load() *Config {
	cfg := Defaults()

	cfg.Faces.Dir = envString("FACES_DIR", cfg.Faces.Dir)
	cfg.Camera.Device = envString("CAMERA_DEVICE", cfg.Camera.Device)

	cfg.Detector.CascadePath = envString("CASCADE_PATH", cfg.Detector.CascadePath)

	cfg.Matcher.Backend = envString("MATCHER", cfg.Matcher.Backend)
	cfg.Matcher.EmbeddingURL = envString("EMBEDDING_URL", cfg.Matcher.EmbeddingURL)
	cfg.Matcher.DistanceThreshold = envFloat("MATCH_DISTANCE_THRESHOLD", cfg.Matcher.DistanceThreshold)
	cfg.Matcher.HashThreshold = envInt("HASH_THRESHOLD", cfg.Matcher.HashThreshold)

	cfg.Capture.RecognitionCooldownMs = envInt("RECOGNITION_COOLDOWN_MS", cfg.Capture.RecognitionCooldownMs)
	cfg.Capture.FrameIntervalMs = envInt("FRAME_INTERVAL_MS", cfg.Capture.FrameIntervalMs)

	cfg.Log.Level = envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envString("LOG_FORMAT", cfg.Log.Format)

	cfg.Web.Host = envString("WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = envInt("WEB_PORT", cfg.Web.Port)
	if origins := envList("WEB_ALLOWED_ORIGINS"); len(origins) > 0 {
		cfg.Web.AllowedOrigins = origins
	}

	return cfg
}
