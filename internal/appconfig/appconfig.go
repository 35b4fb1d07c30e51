package appconfig

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	awsclient "github.com/EO-DataHub/eodhp-directory-services/internal/aws"
	"github.com/EO-DataHub/eodhp-directory-services/internal/directory"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v2"
)

// Config holds all configuration details
type Config struct {
	Host           string               `yaml:"host"`
	API            APIConfig            `yaml:"api"`
	Database       DatabaseConfig       `yaml:"database"`
	Pulsar         PulsarConfig         `yaml:"pulsar"`
	AWS            AWSConfig            `yaml:"aws"`
	UsersAndGroups UsersAndGroupsConfig `yaml:"usersAndGroups"`
	Client         ClientConfig         `yaml:"client"`
}

// APIConfig defines the credentials accepted by the daemon
type APIConfig struct {
	InfoUser  string `yaml:"infoUser"`
	InfoPass  string `yaml:"infoPass"`
	AdminUser string `yaml:"adminUser"`
	AdminPass string `yaml:"adminPass"`
	JWTSecret string `yaml:"jwtSecret"`
	AdminRole string `yaml:"adminRole"`
	InfoRole  string `yaml:"infoRole"`
}

// DatabaseConfig defines the database connection details
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Source string `yaml:"source"`
}

// PulsarConfig defines the messaging system connection details
type PulsarConfig struct {
	URL           string `yaml:"url"`
	TopicProducer string `yaml:"topicProducer"`
	TopicConsumer string `yaml:"topicConsumer"`
	Subscription  string `yaml:"subscription"`
}

type AWSConfig struct {
	Region     string `yaml:"region"`
	SecretName string `yaml:"secretName"`
}

// UsersAndGroupsConfig is the provisioning policy for new entries
type UsersAndGroupsConfig struct {
	DefaultDomain string   `yaml:"defaultDomain"`
	UIDStart      int      `yaml:"uidStart"`
	UIDEnd        int      `yaml:"uidEnd"`
	GIDStart      int      `yaml:"gidStart"`
	GIDEnd        int      `yaml:"gidEnd"`
	UserTypes     []string `yaml:"userTypes"`
	DefUserType   string   `yaml:"defUserType"`
	DefaultGroups []string `yaml:"defaultGroups"`
	HomeDir       string   `yaml:"hdir"`
	Shell         string   `yaml:"shell"`
	SaltSize      int      `yaml:"saltSize"`
}

// ClientConfig is used by the command line client to reach the daemon
type ClientConfig struct {
	Server string `yaml:"server"`
	User   string `yaml:"user"`
	Pass   string `yaml:"pass"`
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// LoadConfig loads and parses the configuration from a given file path
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config file path is required")
	}

	// Parse the template file
	tmpl, err := template.ParseFiles(path)
	if err != nil {
		return nil, fmt.Errorf("error parsing config file template: %w", err)
	}

	// Execute the template with environment variables
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, loadEnvVars()); err != nil {
		return nil, fmt.Errorf("error executing config file template: %w", err)
	}

	return Parse(buf.Bytes())
}

// Parse unmarshals YAML and fills in defaults for anything left unset.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills every unset field with its default value.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost.localdomain"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.API.AdminRole == "" {
		c.API.AdminRole = "directory_admin"
	}
	if c.API.InfoRole == "" {
		c.API.InfoRole = "directory_info"
	}
	if c.Client.Server == "" {
		c.Client.Server = "http://localhost:8080"
	}
	if c.Client.User == "" {
		c.Client.User = "apicli"
	}

	ug := &c.UsersAndGroups
	if ug.DefaultDomain == "" {
		ug.DefaultDomain = c.Host
	}
	if ug.UIDStart == 0 {
		ug.UIDStart = 500
	}
	if ug.UIDEnd == 0 {
		ug.UIDEnd = 65535
	}
	if ug.GIDStart == 0 {
		ug.GIDStart = 500
	}
	if ug.GIDEnd == 0 {
		ug.GIDEnd = 65535
	}
	if len(ug.UserTypes) == 0 {
		ug.UserTypes = []string{"employee", "consultant", "system"}
	}
	if ug.DefUserType == "" {
		ug.DefUserType = ug.UserTypes[0]
	}
	if ug.DefaultGroups == nil {
		ug.DefaultGroups = []string{"users"}
	}
	if ug.HomeDir == "" {
		ug.HomeDir = "/home"
	}
	if ug.Shell == "" {
		ug.Shell = "/bin/bash"
	}
	if ug.SaltSize == 0 {
		ug.SaltSize = 4
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Source == "" {
			result = multierror.Append(result, errors.New("database.source is required for the postgres driver"))
		}
	case DriverMemory:
	default:
		result = multierror.Append(result, fmt.Errorf("unsupported database.driver: %s", c.Database.Driver))
	}

	if c.API.AdminUser == "" || c.API.AdminPass == "" {
		if c.API.JWTSecret == "" {
			result = multierror.Append(result, errors.New("api requires admin credentials or a jwtSecret"))
		}
	}

	ug := c.UsersAndGroups
	if ug.UIDStart > ug.UIDEnd {
		result = multierror.Append(result, fmt.Errorf("usersAndGroups.uidStart (%d) is greater than uidEnd (%d)", ug.UIDStart, ug.UIDEnd))
	}
	if ug.GIDStart > ug.GIDEnd {
		result = multierror.Append(result, fmt.Errorf("usersAndGroups.gidStart (%d) is greater than gidEnd (%d)", ug.GIDStart, ug.GIDEnd))
	}
	if !contains(ug.UserTypes, ug.DefUserType) {
		result = multierror.Append(result, fmt.Errorf("usersAndGroups.defUserType %q is not one of %s", ug.DefUserType, strings.Join(ug.UserTypes, ", ")))
	}
	if ug.SaltSize < 0 {
		result = multierror.Append(result, errors.New("usersAndGroups.saltSize must not be negative"))
	}

	return result.ErrorOrNil()
}

// ResolveSecrets overlays credentials stored in AWS Secrets Manager. Keys of
// the secret are jwtSecret, infoPass, adminPass and databaseSource.
func (c *Config) ResolveSecrets(ctx context.Context, api awsclient.SecretsAPI) error {
	if c.AWS.SecretName == "" {
		return nil
	}

	values, err := awsclient.GetSecretJSON(ctx, api, c.AWS.SecretName)
	if err != nil {
		return err
	}

	overlay := map[string]*string{
		"jwtSecret":      &c.API.JWTSecret,
		"infoPass":       &c.API.InfoPass,
		"adminPass":      &c.API.AdminPass,
		"databaseSource": &c.Database.Source,
	}
	for key, field := range overlay {
		if v, ok := values[key]; ok && v != "" {
			*field = v
		}
	}
	return nil
}

// Directory converts the provisioning section into the service policy.
func (c *Config) Directory() directory.Config {
	ug := c.UsersAndGroups
	return directory.Config{
		DefaultDomain: ug.DefaultDomain,
		UIDStart:      ug.UIDStart,
		UIDEnd:        ug.UIDEnd,
		GIDStart:      ug.GIDStart,
		GIDEnd:        ug.GIDEnd,
		UserTypes:     ug.UserTypes,
		DefUserType:   ug.DefUserType,
		DefaultGroups: ug.DefaultGroups,
		HomeRoot:      ug.HomeDir,
		Shell:         ug.Shell,
		SaltSize:      ug.SaltSize,
	}
}

// loadEnvVars loads environment variables into a map
func loadEnvVars() map[string]string {
	envVars := make(map[string]string)
	for _, env := range os.Environ() {
		kv := strings.SplitN(env, "=", 2)
		if len(kv) == 2 {
			envVars[kv[0]] = kv[1]
		}
	}
	return envVars
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
