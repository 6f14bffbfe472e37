// Package config loads the Edge Hub Controller's process configuration
// (spec.md section 6): broker address, hub identity, DLM tuning, and the
// list of configured nodes. Precedence follows the teacher's own layering
// of flags over a config file — defaults < config file/environment <
// command-line flags — expressed through viper/cobra instead of the
// teacher's raw flag package.
package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NodeDescriptor configures one charging node at startup (spec.md section
// 6: "list of node descriptors (node_id, max_power_kw, simulation,
// serial_port?)").
type NodeDescriptor struct {
	NodeID     string  `yaml:"node_id" mapstructure:"node_id"`
	MaxPowerKW float64 `yaml:"max_power_kw" mapstructure:"max_power_kw"`
	Simulation bool    `yaml:"simulation" mapstructure:"simulation"`
	SerialPort string  `yaml:"serial_port" mapstructure:"serial_port"`
}

// BrokerConfig addresses the pub/sub fabric the hub connects to.
type BrokerConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
}

// LocationConfig is the hub's fixed physical location.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude" mapstructure:"latitude"`
	Longitude float64 `yaml:"longitude" mapstructure:"longitude"`
	AltitudeM float64 `yaml:"altitude_m" mapstructure:"altitude_m"`
}

// Config is the Edge Hub Controller's complete process configuration.
type Config struct {
	Broker BrokerConfig `yaml:"broker" mapstructure:"broker"`

	HubID             string         `yaml:"hub_id" mapstructure:"hub_id"`
	Location          LocationConfig `yaml:"location" mapstructure:"location"`
	MaxGridCapacityKW float64        `yaml:"max_grid_capacity_kw" mapstructure:"max_grid_capacity_kw"`
	FirmwareVersion   string         `yaml:"firmware_version" mapstructure:"firmware_version"`
	IPAddress         string         `yaml:"ip_address" mapstructure:"ip_address"`

	DLMIntervalSeconds int    `yaml:"dlm_interval_s" mapstructure:"dlm_interval_s"`
	PolicyName         string `yaml:"policy" mapstructure:"policy"`

	Nodes []NodeDescriptor `yaml:"nodes" mapstructure:"nodes"`

	EventLogPath string `yaml:"event_log_path" mapstructure:"event_log_path"`
	LogLevel     string `yaml:"log_level" mapstructure:"log_level"`
	Interactive  bool   `yaml:"interactive" mapstructure:"interactive"`
	AdvertiseLAN bool   `yaml:"advertise_lan" mapstructure:"advertise_lan"`
}

// BindFlags registers the command-line flags that take final precedence
// over the config file and environment (spec.md section 6). Call once per
// cobra.Command before Load.
func BindFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("broker-host", "localhost", "pub/sub broker host")
	flags.Int("broker-port", 1883, "pub/sub broker port")
	flags.String("client-id", "", "broker client id (default: hub id)")
	flags.String("hub-id", "", "hub identifier")
	flags.Float64("max-grid-capacity-kw", 0, "maximum grid capacity in kW")
	flags.String("firmware-version", "", "reported firmware version")
	flags.String("ip-address", "", "reported hub IP address")
	flags.Int("dlm-interval-s", 5, "DLM tick interval in seconds")
	flags.String("policy", "equal_share", "DLM allocation policy: equal_share | priority")
	flags.String("event-log-path", "", "CBOR event log path (empty disables)")
	flags.String("log-level", "info", "operational log level: debug | info | warn | error")
	flags.Bool("interactive", false, "enable the operator console")
	flags.Bool("advertise-lan", false, "advertise the hub over mDNS")
}

// Load builds a Config from defaults, an optional YAML file, HUBCTL_*
// environment variables, and any flags bound on cmd (spec.md section 6's
// three-tier precedence). configFile may be empty.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HUBCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("broker.host", "localhost")
	v.SetDefault("broker.port", 1883)
	v.SetDefault("dlm_interval_s", 5)
	v.SetDefault("policy", "equal_share")
	v.SetDefault("log_level", "info")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}

	if cmd != nil {
		flattenFlags(v, cmd)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.Broker.ClientID == "" {
		cfg.Broker.ClientID = cfg.HubID
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// flattenFlags maps the flat CLI flag names registered by BindFlags onto
// the nested config keys viper.Unmarshal expects, but only for flags the
// caller actually set — unset flags must not shadow a config-file value
// with their zero default. Values are read through cmd.Flags()'s typed
// getters rather than BindPFlags's string form, since viper.Unmarshal does
// not weakly-type-convert strings into int/float/bool struct fields.
func flattenFlags(v *viper.Viper, cmd *cobra.Command) {
	flags := cmd.Flags()
	setIfChanged := func(flagName, key string, get func() (any, error)) {
		f := flags.Lookup(flagName)
		if f == nil || !f.Changed {
			return
		}
		val, err := get()
		if err != nil {
			return
		}
		v.Set(key, val)
	}

	setIfChanged("broker-host", "broker.host", func() (any, error) { return flags.GetString("broker-host") })
	setIfChanged("broker-port", "broker.port", func() (any, error) { return flags.GetInt("broker-port") })
	setIfChanged("client-id", "broker.client_id", func() (any, error) { return flags.GetString("client-id") })
	setIfChanged("hub-id", "hub_id", func() (any, error) { return flags.GetString("hub-id") })
	setIfChanged("max-grid-capacity-kw", "max_grid_capacity_kw", func() (any, error) { return flags.GetFloat64("max-grid-capacity-kw") })
	setIfChanged("firmware-version", "firmware_version", func() (any, error) { return flags.GetString("firmware-version") })
	setIfChanged("ip-address", "ip_address", func() (any, error) { return flags.GetString("ip-address") })
	setIfChanged("dlm-interval-s", "dlm_interval_s", func() (any, error) { return flags.GetInt("dlm-interval-s") })
	setIfChanged("policy", "policy", func() (any, error) { return flags.GetString("policy") })
	setIfChanged("event-log-path", "event_log_path", func() (any, error) { return flags.GetString("event-log-path") })
	setIfChanged("log-level", "log_level", func() (any, error) { return flags.GetString("log-level") })
	setIfChanged("interactive", "interactive", func() (any, error) { return flags.GetBool("interactive") })
	setIfChanged("advertise-lan", "advertise_lan", func() (any, error) { return flags.GetBool("advertise-lan") })
}

// Validate rejects a malformed or out-of-range configuration (spec.md
// section 6: "a malformed config is a fatal startup error").
func (c *Config) Validate() error {
	if c.HubID == "" || len(c.HubID) > 50 {
		return fmt.Errorf("config: hub_id must be 1-50 chars, got %d", len(c.HubID))
	}
	if c.Broker.Host == "" {
		return fmt.Errorf("config: broker.host is required")
	}
	if c.Broker.Port <= 0 || c.Broker.Port > 65535 {
		return fmt.Errorf("config: broker.port %d out of range", c.Broker.Port)
	}
	if c.MaxGridCapacityKW <= 0 || c.MaxGridCapacityKW > 1000 {
		return fmt.Errorf("config: max_grid_capacity_kw %.2f out of range (0,1000]", c.MaxGridCapacityKW)
	}
	if c.IPAddress != "" && net.ParseIP(c.IPAddress) == nil {
		return fmt.Errorf("config: ip_address %q is not a valid IP address", c.IPAddress)
	}
	if c.DLMIntervalSeconds <= 0 {
		return fmt.Errorf("config: dlm_interval_s must be positive, got %d", c.DLMIntervalSeconds)
	}
	if c.PolicyName != "equal_share" && c.PolicyName != "priority" {
		return fmt.Errorf("config: policy must be \"equal_share\" or \"priority\", got %q", c.PolicyName)
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("config: at least one node descriptor is required")
	}
	seen := make(map[string]bool, len(c.Nodes))
	for i, n := range c.Nodes {
		if n.NodeID == "" {
			return fmt.Errorf("config: nodes[%d].node_id is required", i)
		}
		if seen[n.NodeID] {
			return fmt.Errorf("config: duplicate node_id %q", n.NodeID)
		}
		seen[n.NodeID] = true
		if n.MaxPowerKW <= 0 {
			return fmt.Errorf("config: nodes[%d] (%s).max_power_kw must be positive", i, n.NodeID)
		}
		if !n.Simulation && n.SerialPort == "" {
			return fmt.Errorf("config: nodes[%d] (%s): serial_port is required when simulation is false", i, n.NodeID)
		}
	}
	return nil
}
