package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	envPrefix = "REGISTRY_"

	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 60 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultUploadsDir          = "uploads"
	defaultCertificatesDir     = "certificates"
	defaultPublicBaseURL       = "http://localhost:8080"
	defaultRenderTimeout       = 30 * time.Second
	defaultPageSize            = PageSizeA4
	defaultBreakerFailures     = 3
	defaultBreakerCooldown     = time.Minute
	defaultReplayTTL           = 24 * time.Hour
	defaultSecurityEnvironment = "local"
)

// Supported certificate paper sizes.
const (
	PageSizeA4     = "A4"
	PageSizeLetter = "Letter"
)

// Config is the registry runtime configuration grouped by concern.
type Config struct {
	Server       ServerConfig
	Firebase     FirebaseConfig
	Firestore    FirestoreConfig
	Storage      StorageConfig
	Certificates CertificateConfig
	PubSub       PubSubConfig
	Security     SecurityConfig
	Audit        AuditConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings used for ID token verification.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig points at the local directories holding uploaded photos and issued artifacts.
type StorageConfig struct {
	UploadsDir      string
	CertificatesDir string
}

// CertificateConfig controls certificate rendering and verification links.
type CertificateConfig struct {
	PublicBaseURL   string
	RenderTimeout   time.Duration
	ChromePath      string
	PageSize        string
	SigningKey      string
	BreakerFailures uint32
	BreakerCooldown time.Duration
	// ReplayTTL is how long a generate response stays replayable under its Idempotency-Key.
	ReplayTTL time.Duration
}

// PubSubConfig configures issued-certificate notifications. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID        string
	CertificateTopic string
}

// SecurityConfig carries deployment environment markers.
type SecurityConfig struct {
	Environment string
}

// AuditConfig configures audit log hashing.
type AuditConfig struct {
	HashSalt string
}

// SecretResolver resolves secret:// references.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret calls f.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError lists missing or invalid configuration fields.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the invalid field names.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError wraps a failed secret resolution.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError reports required secrets that resolved to empty values. Names are redacted
// in the error message.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	redacted := make([]string, 0, len(e.names))
	for _, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		redacted = append(redacted, hex.EncodeToString(sum[:8]))
	}
	sort.Strings(redacted)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(redacted, ", "))
}

// Names returns the missing secret field names.
func (e *MissingSecretsError) Names() []string {
	return append([]string(nil), e.names...)
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the dotenv file path. An empty path disables dotenv loading.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap supplies explicit values that take precedence over every other source.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver used for secret:// and sm:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets marks secret fields (e.g. "Certificates.SigningKey") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// EnvironmentValues returns the merged key/value environment using Load's precedence, so callers can
// bootstrap dependencies (such as the secret fetcher) before loading.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)
	dotenv, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(dotenv))
	for k, v := range dotenv {
		values[k] = v
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			if key, value, ok := strings.Cut(entry, "="); ok && key != "" {
				values[key] = value
			}
		}
	}
	for k, v := range options.envMap {
		values[k] = v
	}
	return values, nil
}

// Load assembles the configuration from defaults < .env < OS env < explicit map, then resolves
// secret references and validates the result.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	values, err := EnvironmentValues(opts...)
	if err != nil {
		return Config{}, err
	}
	env := source(values)

	cfg := Config{
		Server: ServerConfig{
			Port:         env.string("SERVER_PORT", defaultPort),
			ReadTimeout:  env.duration("SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: env.duration("SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  env.duration("SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       env.string("FIREBASE_PROJECT_ID", ""),
			CredentialsFile: env.string("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.string("FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.string("FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			UploadsDir:      env.string("STORAGE_UPLOADS_DIR", defaultUploadsDir),
			CertificatesDir: env.string("STORAGE_CERTIFICATES_DIR", defaultCertificatesDir),
		},
		Certificates: CertificateConfig{
			PublicBaseURL:   strings.TrimRight(env.string("CERT_PUBLIC_BASE_URL", defaultPublicBaseURL), "/"),
			RenderTimeout:   env.duration("CERT_RENDER_TIMEOUT", defaultRenderTimeout),
			ChromePath:      env.string("CERT_CHROME_PATH", ""),
			PageSize:        env.string("CERT_PAGE_SIZE", defaultPageSize),
			SigningKey:      env.string("CERT_SIGNING_KEY", ""),
			BreakerFailures: uint32(env.int("CERT_BREAKER_FAILURES", defaultBreakerFailures)),
			BreakerCooldown: env.duration("CERT_BREAKER_COOLDOWN", defaultBreakerCooldown),
			ReplayTTL:       env.duration("CERT_REPLAY_TTL", defaultReplayTTL),
		},
		PubSub: PubSubConfig{
			ProjectID:        env.string("PUBSUB_PROJECT_ID", ""),
			CertificateTopic: env.string("PUBSUB_CERTIFICATE_TOPIC", ""),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(env.string("SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
		},
		Audit: AuditConfig{
			HashSalt: env.string("AUDIT_HASH_SALT", ""),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	resolved := make(map[string]string)
	for _, target := range []struct {
		name  string
		field *string
	}{
		{"Certificates.SigningKey", &cfg.Certificates.SigningKey},
		{"Audit.HashSalt", &cfg.Audit.HashSalt},
	} {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	var missing []string
	for _, name := range options.requiredSecrets {
		if name = strings.TrimSpace(name); name != "" && resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Config{}, &MissingSecretsError{names: missing}
	}
	return cfg, nil
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

func validate(cfg Config) error {
	var invalid []string
	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		invalid = append(invalid, "Firebase.ProjectID")
	}
	if strings.TrimSpace(cfg.Storage.UploadsDir) == "" {
		invalid = append(invalid, "Storage.UploadsDir")
	}
	if strings.TrimSpace(cfg.Storage.CertificatesDir) == "" {
		invalid = append(invalid, "Storage.CertificatesDir")
	}
	if u, err := url.Parse(cfg.Certificates.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		invalid = append(invalid, "Certificates.PublicBaseURL")
	}
	if cfg.Certificates.RenderTimeout <= 0 {
		invalid = append(invalid, "Certificates.RenderTimeout")
	}
	if cfg.Certificates.PageSize != PageSizeA4 && cfg.Certificates.PageSize != PageSizeLetter {
		invalid = append(invalid, "Certificates.PageSize")
	}
	if cfg.Certificates.BreakerFailures == 0 {
		invalid = append(invalid, "Certificates.BreakerFailures")
	}
	if cfg.Certificates.ReplayTTL <= 0 {
		invalid = append(invalid, "Certificates.ReplayTTL")
	}
	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "secret://") && !strings.HasPrefix(trimmed, "sm://") {
		return value, nil
	}
	ref := "secret://" + strings.TrimPrefix(strings.TrimPrefix(trimmed, "sm://"), "secret://")
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		values[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", path, err)
	}
	return values, nil
}

// source reads REGISTRY_-prefixed keys with typed defaults.
type source map[string]string

func (s source) lookup(key string) (string, bool) {
	value, ok := s[envPrefix+key]
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func (s source) string(key, fallback string) string {
	if value, ok := s.lookup(key); ok {
		return value
	}
	return fallback
}

func (s source) duration(key string, fallback time.Duration) time.Duration {
	if value, ok := s.lookup(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (s source) int(key string, fallback int) int {
	if value, ok := s.lookup(key); ok {
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}
