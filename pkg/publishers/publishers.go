package publishers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	// Supported publisher types.
	TypeQueue    = "queue"
	TypeHTTP     = "http"
	TypeWhatsApp = "whatsapp"
	TypeS3       = "s3"

	// Supported queue providers.
	QueueProviderAWSSQS   = "aws-sqs"
	QueueProviderAWSSNS   = "aws-sns"
	QueueProviderGCP      = "gcp"
	QueueProviderKafka    = "kafka"
	QueueProviderRabbitMQ = "rabbitmq"

	httpDefaultMethod         = "POST"
	httpDefaultTimeoutSeconds = 5

	whatsAppDefaultAPIURL         = "https://wasenderapi.com/api/send-message"
	whatsAppDefaultDashboard      = "localhost:5000"
	whatsAppDefaultTimezone       = "America/Sao_Paulo"
	whatsAppDefaultTimeoutSeconds = 10
)

// configFile represents the structure of the publishers configuration file.
type configFile struct {
	Publishers []PublisherConfig `json:"publishers" yaml:"publishers"`
}

// PublisherConfig represents a single publisher entry declared in config files.
type PublisherConfig struct {
	ID       string                   `json:"id" yaml:"id"`
	Type     string                   `json:"type" yaml:"type"`
	Enabled  *bool                    `json:"enabled" yaml:"enabled"`
	Queue    *QueuePublisherConfig    `json:"queue" yaml:"queue"`
	HTTP     *HTTPPublisherConfig     `json:"http" yaml:"http"`
	WhatsApp *WhatsAppPublisherConfig `json:"whatsapp" yaml:"whatsapp"`
	S3       *S3PublisherConfig       `json:"s3" yaml:"s3"`
}

// QueuePublisherConfig allows selecting a queue provider.
type QueuePublisherConfig struct {
	Provider string                 `json:"provider" yaml:"provider"`
	AWS      *AWSSQSPublisherConfig `json:"aws" yaml:"aws"`
	SNS      *AWSSNSPublisherConfig `json:"sns" yaml:"sns"`
	GCP      *GCPQueueConfig        `json:"gcp" yaml:"gcp"`
	Kafka    *KafkaQueueConfig      `json:"kafka" yaml:"kafka"`
	RabbitMQ *RabbitMQQueueConfig   `json:"rabbitmq" yaml:"rabbitmq"`
}

// AWSSQSPublisherConfig holds AWS SQS specific settings. Leaving both keys
// empty falls back to the default AWS credential chain.
type AWSSQSPublisherConfig struct {
	QueueURL        string `json:"uri" yaml:"uri"`
	Region          string `json:"region" yaml:"region"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

// AWSSNSPublisherConfig holds AWS SNS specific settings.
type AWSSNSPublisherConfig struct {
	TopicARN        string `json:"topic_arn" yaml:"topic_arn"`
	Region          string `json:"region" yaml:"region"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

// GCPQueueConfig holds the minimal Pub/Sub topic settings.
type GCPQueueConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id"`
	Topic           string `json:"topic" yaml:"topic"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
}

// KafkaQueueConfig holds Kafka producer settings.
type KafkaQueueConfig struct {
	Brokers  []string `json:"brokers" yaml:"brokers"`
	Topic    string   `json:"topic" yaml:"topic"`
	ClientID string   `json:"client_id" yaml:"client_id"`
}

// RabbitMQQueueConfig holds AMQP publish settings. An empty exchange publishes
// to the default exchange, where the routing key is the queue name.
type RabbitMQQueueConfig struct {
	URL        string `json:"url" yaml:"url"`
	Exchange   string `json:"exchange" yaml:"exchange"`
	RoutingKey string `json:"routing_key" yaml:"routing_key"`
}

// HTTPPublisherConfig holds generic HTTP sink settings.
type HTTPPublisherConfig struct {
	URL            string            `json:"url" yaml:"url"`
	Method         string            `json:"method" yaml:"method"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// WhatsAppPublisherConfig holds WaSenderAPI settings.
type WhatsAppPublisherConfig struct {
	APIURL         string `json:"api_url" yaml:"api_url"`
	APIKey         string `json:"api_key" yaml:"api_key"`
	DashboardURL   string `json:"dashboard_url" yaml:"dashboard_url"`
	Timezone       string `json:"timezone" yaml:"timezone"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// S3PublisherConfig holds the archive bucket settings.
type S3PublisherConfig struct {
	Bucket          string `json:"bucket" yaml:"bucket"`
	Prefix          string `json:"prefix" yaml:"prefix"`
	Region          string `json:"region" yaml:"region"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle    bool   `json:"use_path_style" yaml:"use_path_style"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

// ConfigRegistry materializes publisher definitions loaded from config files.
type ConfigRegistry struct {
	mu         sync.RWMutex
	publishers []PublisherConfig
	idx        map[string]PublisherConfig
}

// LoadRegistry loads the publisher registry from a YAML/JSON file.
func LoadRegistry(path string) (*ConfigRegistry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("publishers file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open publishers file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read publishers file: %w", err)
	}
	return ParseRegistry(raw, filepath.Ext(path))
}

// ParseRegistry decodes publisher definitions, expanding ${ENV} references.
func ParseRegistry(raw []byte, ext string) (*ConfigRegistry, error) {
	expanded := []byte(os.ExpandEnv(string(raw)))

	fileReg, err := parsePublisherRegistry(expanded, ext)
	if err != nil {
		return nil, err
	}
	if len(fileReg.Publishers) == 0 {
		return nil, errors.New("publishers file contains no publishers entries")
	}

	reg := &ConfigRegistry{
		publishers: make([]PublisherConfig, len(fileReg.Publishers)),
		idx:        make(map[string]PublisherConfig, len(fileReg.Publishers)),
	}

	for i := range fileReg.Publishers {
		cfg := sanitizePublisherConfig(fileReg.Publishers[i])
		if err := validatePublisherConfig(cfg); err != nil {
			return nil, fmt.Errorf("publishers[%d]: %w", i, err)
		}
		if _, exists := reg.idx[cfg.ID]; exists {
			return nil, fmt.Errorf("duplicate publisher id %q", cfg.ID)
		}
		reg.publishers[i] = cfg
		reg.idx[cfg.ID] = cfg
	}

	return reg, nil
}

// parsePublisherRegistry attempts to decode the publishers file content.
func parsePublisherRegistry(data []byte, ext string) (configFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	var lastErr error
	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		reg, err := unmarshalPublisherRegistry(d.name, data, d.fn)
		if err == nil {
			return reg, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return configFile{}, lastErr
	}

	return configFile{}, errors.New("publishers file format not recognized (expected YAML or JSON)")
}

// unmarshalPublisherRegistry decodes the publishers file using the provided function.
func unmarshalPublisherRegistry(name string, data []byte, fn func([]byte, any) error) (configFile, error) {
	var reg configFile
	if err := fn(data, &reg); err != nil {
		return configFile{}, fmt.Errorf("decode %s publishers: %w", name, err)
	}
	return reg, nil
}

// sanitizePublisherConfig trims and normalizes the publisher config fields.
func sanitizePublisherConfig(cfg PublisherConfig) PublisherConfig {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))

	if cfg.Enabled == nil {
		def := true
		cfg.Enabled = &def
	}
	if cfg.Queue != nil {
		cfg.Queue = sanitizeQueueConfig(*cfg.Queue)
	}
	if cfg.HTTP != nil {
		c := *cfg.HTTP
		c.URL = strings.TrimSpace(c.URL)
		c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
		if c.Method == "" {
			c.Method = httpDefaultMethod
		}
		c.Headers = sanitizeHeaders(c.Headers)
		if c.TimeoutSeconds <= 0 {
			c.TimeoutSeconds = httpDefaultTimeoutSeconds
		}
		cfg.HTTP = &c
	}
	if cfg.WhatsApp != nil {
		w := *cfg.WhatsApp
		w.APIURL = strings.TrimSpace(w.APIURL)
		if w.APIURL == "" {
			w.APIURL = whatsAppDefaultAPIURL
		}
		w.APIKey = strings.TrimSpace(w.APIKey)
		w.DashboardURL = strings.TrimSuffix(strings.TrimSpace(w.DashboardURL), "/")
		if w.DashboardURL == "" {
			w.DashboardURL = whatsAppDefaultDashboard
		}
		w.Timezone = strings.TrimSpace(w.Timezone)
		if w.Timezone == "" {
			w.Timezone = whatsAppDefaultTimezone
		}
		if w.TimeoutSeconds <= 0 {
			w.TimeoutSeconds = whatsAppDefaultTimeoutSeconds
		}
		cfg.WhatsApp = &w
	}
	if cfg.S3 != nil {
		s := *cfg.S3
		s.Bucket = strings.TrimSpace(s.Bucket)
		s.Prefix = strings.Trim(strings.TrimSpace(s.Prefix), "/")
		s.Region = strings.TrimSpace(s.Region)
		s.Endpoint = strings.TrimSpace(s.Endpoint)
		s.AccessKeyID = strings.TrimSpace(s.AccessKeyID)
		s.SecretAccessKey = strings.TrimSpace(s.SecretAccessKey)
		cfg.S3 = &s
	}

	return cfg
}

func sanitizeQueueConfig(qc QueuePublisherConfig) *QueuePublisherConfig {
	qc.Provider = strings.ToLower(strings.TrimSpace(qc.Provider))
	if qc.AWS != nil {
		a := *qc.AWS
		a.QueueURL = strings.TrimSpace(a.QueueURL)
		a.Region = strings.TrimSpace(a.Region)
		a.AccessKeyID = strings.TrimSpace(a.AccessKeyID)
		a.SecretAccessKey = strings.TrimSpace(a.SecretAccessKey)
		qc.AWS = &a
	}
	if qc.SNS != nil {
		s := *qc.SNS
		s.TopicARN = strings.TrimSpace(s.TopicARN)
		s.Region = strings.TrimSpace(s.Region)
		s.AccessKeyID = strings.TrimSpace(s.AccessKeyID)
		s.SecretAccessKey = strings.TrimSpace(s.SecretAccessKey)
		qc.SNS = &s
	}
	if qc.GCP != nil {
		g := *qc.GCP
		g.ProjectID = strings.TrimSpace(g.ProjectID)
		g.Topic = strings.TrimSpace(g.Topic)
		g.CredentialsFile = strings.TrimSpace(g.CredentialsFile)
		qc.GCP = &g
	}
	if qc.Kafka != nil {
		k := *qc.Kafka
		var brokers []string
		for _, b := range k.Brokers {
			// a single env var may carry a comma separated broker list
			for _, part := range strings.Split(b, ",") {
				if part = strings.TrimSpace(part); part != "" {
					brokers = append(brokers, part)
				}
			}
		}
		k.Brokers = brokers
		k.Topic = strings.TrimSpace(k.Topic)
		k.ClientID = strings.TrimSpace(k.ClientID)
		qc.Kafka = &k
	}
	if qc.RabbitMQ != nil {
		r := *qc.RabbitMQ
		r.URL = strings.TrimSpace(r.URL)
		r.Exchange = strings.TrimSpace(r.Exchange)
		r.RoutingKey = strings.TrimSpace(r.RoutingKey)
		qc.RabbitMQ = &r
	}
	return &qc
}

// sanitizeHeaders trims and removes empty headers.
func sanitizeHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		key := strings.TrimSpace(k)
		val := strings.TrimSpace(v)
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// validatePublisherConfig checks that required fields are present.
func validatePublisherConfig(cfg PublisherConfig) error {
	if cfg.ID == "" {
		return errors.New("id is required")
	}
	if cfg.Type == "" {
		return fmt.Errorf("type is required for publisher %q", cfg.ID)
	}
	switch cfg.Type {
	case TypeQueue:
		if cfg.Queue == nil {
			return fmt.Errorf("queue config required for publisher %q", cfg.ID)
		}
		switch cfg.Queue.Provider {
		case QueueProviderAWSSQS:
			return validateSQSConfig(cfg.ID, cfg.Queue.AWS)
		case QueueProviderAWSSNS:
			return validateSNSConfig(cfg.ID, cfg.Queue.SNS)
		case QueueProviderGCP:
			return validateGCPConfig(cfg.ID, cfg.Queue.GCP)
		case QueueProviderKafka:
			return validateKafkaConfig(cfg.ID, cfg.Queue.Kafka)
		case QueueProviderRabbitMQ:
			return validateRabbitMQConfig(cfg.ID, cfg.Queue.RabbitMQ)
		default:
			return fmt.Errorf("queue provider %q not supported for publisher %q", cfg.Queue.Provider, cfg.ID)
		}
	case TypeHTTP:
		if cfg.HTTP == nil {
			return fmt.Errorf("http config required for publisher %q", cfg.ID)
		}
		if err := validateHTTPURL("http.url", cfg.ID, cfg.HTTP.URL); err != nil {
			return err
		}
	case TypeWhatsApp:
		if cfg.WhatsApp == nil {
			return fmt.Errorf("whatsapp config required for publisher %q", cfg.ID)
		}
		if cfg.WhatsApp.APIKey == "" {
			return fmt.Errorf("whatsapp.api_key is required for publisher %q", cfg.ID)
		}
		if err := validateHTTPURL("whatsapp.api_url", cfg.ID, cfg.WhatsApp.APIURL); err != nil {
			return err
		}
	case TypeS3:
		if cfg.S3 == nil {
			return fmt.Errorf("s3 config required for publisher %q", cfg.ID)
		}
		if cfg.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required for publisher %q", cfg.ID)
		}
		if cfg.S3.Region == "" {
			return fmt.Errorf("s3.region is required for publisher %q", cfg.ID)
		}
		return validateKeyPair("s3", cfg.ID, cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey)
	default:
		return fmt.Errorf("type %q not supported for publisher %q", cfg.Type, cfg.ID)
	}
	return nil
}

func validateHTTPURL(field, id, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required for publisher %q", field, id)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) url for publisher %q", field, id)
	}
	return nil
}

// validateKeyPair accepts both keys or neither; neither means the default
// AWS credential chain.
func validateKeyPair(prefix, id, accessKey, secret string) error {
	if (accessKey == "") != (secret == "") {
		return fmt.Errorf("%s.access_key_id and %s.secret_access_key must be set together for publisher %q", prefix, prefix, id)
	}
	return nil
}

func validateSQSConfig(id string, cfg *AWSSQSPublisherConfig) error {
	if cfg == nil {
		return fmt.Errorf("sqs config required for publisher %q", id)
	}
	if cfg.QueueURL == "" {
		return fmt.Errorf("sqs.uri is required for publisher %q", id)
	}
	if cfg.Region == "" {
		return fmt.Errorf("sqs.region is required for publisher %q", id)
	}
	return validateKeyPair("sqs", id, cfg.AccessKeyID, cfg.SecretAccessKey)
}

func validateSNSConfig(id string, cfg *AWSSNSPublisherConfig) error {
	if cfg == nil {
		return fmt.Errorf("sns config required for publisher %q", id)
	}
	if cfg.TopicARN == "" {
		return fmt.Errorf("sns.topic_arn is required for publisher %q", id)
	}
	if cfg.Region == "" {
		return fmt.Errorf("sns.region is required for publisher %q", id)
	}
	return validateKeyPair("sns", id, cfg.AccessKeyID, cfg.SecretAccessKey)
}

func validateGCPConfig(id string, cfg *GCPQueueConfig) error {
	if cfg == nil {
		return fmt.Errorf("gcp config required for publisher %q", id)
	}
	if cfg.ProjectID == "" {
		return fmt.Errorf("gcp.project_id is required for publisher %q", id)
	}
	if cfg.Topic == "" {
		return fmt.Errorf("gcp.topic is required for publisher %q", id)
	}
	return nil
}

func validateKafkaConfig(id string, cfg *KafkaQueueConfig) error {
	if cfg == nil {
		return fmt.Errorf("kafka config required for publisher %q", id)
	}
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required for publisher %q", id)
	}
	if cfg.Topic == "" {
		return fmt.Errorf("kafka.topic is required for publisher %q", id)
	}
	return nil
}

func validateRabbitMQConfig(id string, cfg *RabbitMQQueueConfig) error {
	if cfg == nil {
		return fmt.Errorf("rabbitmq config required for publisher %q", id)
	}
	if cfg.URL == "" {
		return fmt.Errorf("rabbitmq.url is required for publisher %q", id)
	}
	if cfg.Exchange == "" && cfg.RoutingKey == "" {
		return fmt.Errorf("rabbitmq.exchange or rabbitmq.routing_key is required for publisher %q", id)
	}
	return nil
}

// ByID returns the publisher config by id.
func (r *ConfigRegistry) ByID(id string) (PublisherConfig, bool) {
	if r == nil {
		return PublisherConfig{}, false
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return PublisherConfig{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.idx[id]
	return cfg, ok
}

// All returns all configured publishers.
func (r *ConfigRegistry) All() []PublisherConfig {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PublisherConfig, len(r.publishers))
	copy(out, r.publishers)
	return out
}

// Enabled returns publishers that are enabled.
func (r *ConfigRegistry) Enabled() []PublisherConfig {
	if r == nil {
		return nil
	}

	all := r.All()
	if len(all) == 0 {
		return nil
	}

	out := make([]PublisherConfig, 0, len(all))
	for _, cfg := range all {
		if cfg.EnabledValue() {
			out = append(out, cfg)
		}
	}
	return out
}

// EnabledValue returns enabled flag defaulting to true.
func (cfg PublisherConfig) EnabledValue() bool {
	if cfg.Enabled == nil {
		return true
	}
	return *cfg.Enabled
}
