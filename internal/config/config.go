package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is read once at process start and shared read-only by every request.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"local"`
	Port        string `env:"PORT"        envDefault:"8080"`

	IngestDeadline  time.Duration `env:"INGEST_DEADLINE"   envDefault:"15s"`
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES"  envDefault:"52428800"`
	FFmpegPath      string        `env:"FFMPEG_PATH"       envDefault:"ffmpeg"`
	ScratchDir      string        `env:"SCRATCH_DIR"       envDefault:""`
	DefaultLocation string        `env:"DEFAULT_LOCATION"  envDefault:"portland-or"`
	MaxScanSeconds  int           `env:"MAX_SCAN_SECONDS"  envDefault:"120"`

	DenoiseBackend string `env:"DENOISE_BACKEND" envDefault:"ffmpeg"`

	TranscribeBackend string        `env:"TRANSCRIBE_BACKEND" envDefault:"openai"`
	TranscribeURL     string        `env:"TRANSCRIBE_URL"     envDefault:"https://api.openai.com/v1"`
	TranscribeAPIKey  string        `env:"TRANSCRIBE_API_KEY" envDefault:""`
	TranscribeModel   string        `env:"TRANSCRIBE_MODEL"   envDefault:"whisper-1"`
	TranscribeTimeout time.Duration `env:"TRANSCRIBE_TIMEOUT" envDefault:"120s"`
	UseMockTranscribe bool          `env:"USE_MOCK_TRANSCRIBE" envDefault:"false"`

	ExtractBackend string `env:"EXTRACT_BACKEND"  envDefault:"ner"`
	NERURL         string `env:"NER_URL"          envDefault:"http://localhost:8090/entities"`
	LLMGatewayURL  string `env:"LLM_GATEWAY_URL"  envDefault:""`
	LLMModel       string `env:"LLM_MODEL"        envDefault:""`
	LLMAPIKey      string `env:"LLM_API_KEY"      envDefault:""`
	UseMockExtract bool   `env:"USE_MOCK_EXTRACT" envDefault:"false"`

	NominatimURL       string        `env:"NOMINATIM_URL"        envDefault:"https://nominatim.openstreetmap.org"`
	NominatimUserAgent string        `env:"NOMINATIM_USER_AGENT" envDefault:"voice-geo-go/1.0"`
	GeocodeTimeout     time.Duration `env:"GEOCODE_TIMEOUT"      envDefault:"10s"`
	UseMockGeocoder    bool          `env:"USE_MOCK_GEOCODER"    envDefault:"false"`

	ResolverBaseDelay   time.Duration `env:"RESOLVER_BASE_DELAY"   envDefault:"1s"`
	ResolverMinInterval time.Duration `env:"RESOLVER_MIN_INTERVAL" envDefault:"1s"`
	ResolverPolicyFile  string        `env:"RESOLVER_POLICY_FILE"  envDefault:""`

	EventsDBPath string `env:"EVENTS_DB_PATH" envDefault:"static/pdscanner.db"`

	SpoolDir           string        `env:"SPOOL_DIR"            envDefault:""`
	CaptureInputFormat string        `env:"CAPTURE_INPUT_FORMAT" envDefault:"alsa"`
	CaptureDevice      string        `env:"CAPTURE_DEVICE"       envDefault:"default"`
	CaptureChunk       time.Duration `env:"CAPTURE_CHUNK"        envDefault:"15s"`
}

// Load parses the process environment.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return c, nil
}

// RequestBudget bounds one synchronous pipeline run: the longest acquisition
// a caller may ask for, the transcription timeout and downstream, the
// remaining stages' timeouts and retry allowances.
func (c Config) RequestBudget(downstream time.Duration) time.Duration {
	ingest := c.IngestDeadline
	if scan := time.Duration(c.MaxScanSeconds) * time.Second; scan > ingest {
		ingest = scan
	}
	return ingest + c.TranscribeTimeout + downstream
}

// Policy holds the resolver's read-only filtering knobs.
type Policy struct {
	Stoplist            []string `yaml:"stoplist"`
	ExcludedPlaceTypes  []string `yaml:"excluded_place_types"`
	ImportanceThreshold float64  `yaml:"importance_threshold"`
	MaxResults          int      `yaml:"max_results"`
	MaxAttempts         int      `yaml:"max_attempts"`
}

// DefaultStoplist covers radio chatter that taggers routinely mislabel as places.
var DefaultStoplist = []string{
	"copy", "roger", "dispatch", "unit", "engine", "medic", "ten four", "10-4",
	"code", "over", "station", "north", "south", "east", "west", "downtown",
	"county", "city", "street", "avenue", "main", "the city",
}

// DefaultPolicy returns the built-in resolver policy.
func DefaultPolicy() Policy {
	return Policy{
		Stoplist:            append([]string(nil), DefaultStoplist...),
		ExcludedPlaceTypes:  []string{"house", "address", "building", "house_number"},
		ImportanceThreshold: 0.2,
		MaxResults:          10,
		MaxAttempts:         3,
	}
}

// LoadPolicy reads a YAML policy file over the defaults. An empty path returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	var override Policy
	if err := yaml.Unmarshal(b, &override); err != nil {
		return Policy{}, fmt.Errorf("decode policy: %w", err)
	}
	if override.Stoplist != nil {
		p.Stoplist = override.Stoplist
	}
	if override.ExcludedPlaceTypes != nil {
		p.ExcludedPlaceTypes = override.ExcludedPlaceTypes
	}
	if override.ImportanceThreshold > 0 {
		p.ImportanceThreshold = override.ImportanceThreshold
	}
	if override.MaxResults > 0 {
		p.MaxResults = override.MaxResults
	}
	if override.MaxAttempts > 0 {
		p.MaxAttempts = override.MaxAttempts
	}
	return p, nil
}
