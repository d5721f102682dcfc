// Separate package name avoids clash with local config variables.
package nt_config

import (
	"io/ioutil"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/ntsync/helpers"
	"github.com/temoto/ntsync/nt"
	"github.com/temoto/ntsync/nt/rtt"
)

const (
	DefaultNetworkTimeout = 30 * time.Second
	DefaultRetryDelay     = time.Second
	DefaultSendQueue      = 64
	DefaultClientName     = "ntclient"
)

type Config struct { //nolint:maligned
	ServerURL         string `hcl:"server_url"`
	ClientName        string `hcl:"client_name"`
	LogDebug          bool   `hcl:"log_debug"`
	PingIntervalMs    int    `hcl:"ping_interval_ms"`
	NetworkTimeoutSec int    `hcl:"network_timeout_sec"`
	RetryDelaySec     int    `hcl:"retry_delay_sec"`
	SendQueue         int    `hcl:"send_queue"`
	MetricsListen     string `hcl:"metrics_listen"`

	Subscribe []SubscribeConfig `hcl:"subscribe"`
	Publish   []PublishConfig   `hcl:"publish"`
}

type SubscribeConfig struct { //nolint:maligned
	Name           string  `hcl:"name,key"`
	Prefix         bool    `hcl:"prefix"`
	Periodic       float64 `hcl:"periodic"`
	All            bool    `hcl:"all"`
	TopicsOnly     bool    `hcl:"topics_only"`
	KeepDuplicates bool    `hcl:"keep_duplicates"`
	PollStorage    int     `hcl:"poll_storage"`
}

func (self *SubscribeConfig) Options() nt.PubSubOptions {
	return nt.NewOptions(
		nt.WithPrefixMatch(self.Prefix),
		nt.WithPeriodic(self.Periodic),
		nt.WithSendAll(self.All),
		nt.WithTopicsOnly(self.TopicsOnly),
		nt.WithKeepDuplicates(self.KeepDuplicates),
		nt.WithPollStorage(self.PollStorage),
	)
}

type PublishConfig struct { //nolint:maligned
	Name       string  `hcl:"name,key"`
	Type       string  `hcl:"type"`
	Periodic   float64 `hcl:"periodic"`
	All        bool    `hcl:"all"`
	Retained   bool    `hcl:"retained"`
	Persistent bool    `hcl:"persistent"`
}

func (self *PublishConfig) Options() nt.PubSubOptions {
	return nt.NewOptions(nt.WithPeriodic(self.Periodic), nt.WithSendAll(self.All))
}

// Properties contains only flags set to true.
func (self *PublishConfig) Properties() nt.Properties {
	p := nt.Properties{}
	if self.Retained {
		p[nt.PropRetained] = true
	}
	if self.Persistent {
		p[nt.PropPersistent] = true
	}
	return p
}

func (c *Config) PingInterval() time.Duration {
	if c.PingIntervalMs <= 0 {
		return rtt.DefaultInterval
	}
	return time.Duration(c.PingIntervalMs) * time.Millisecond
}

func (c *Config) NetworkTimeout() time.Duration {
	if c.NetworkTimeoutSec <= 0 {
		return DefaultNetworkTimeout
	}
	return time.Duration(c.NetworkTimeoutSec) * time.Second
}

func (c *Config) RetryDelay() time.Duration {
	if c.RetryDelaySec <= 0 {
		return DefaultRetryDelay
	}
	return time.Duration(c.RetryDelaySec) * time.Second
}

func (c *Config) SendQueueSize() int {
	if c.SendQueue <= 0 {
		return DefaultSendQueue
	}
	return c.SendQueue
}

// URL returns server_url, with /nt/<client_name> appended when it has no path.
func (c *Config) URL() (string, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", errors.Annotate(err, "server_url")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", errors.NotValidf("server_url scheme=%s, expected ws or wss", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.NotValidf("server_url without host")
	}
	if u.Path == "" || u.Path == "/" {
		name := c.ClientName
		if name == "" {
			name = DefaultClientName
		}
		u.Path = "/nt/" + name
	}
	return u.String(), nil
}

func (c *Config) validate() []error {
	errs := make([]error, 0, 4)
	if c.ServerURL == "" {
		errs = append(errs, errors.NotValidf("server_url required"))
	} else if _, err := c.URL(); err != nil {
		errs = append(errs, err)
	}
	seen := make(map[string]struct{}, len(c.Subscribe))
	for _, s := range c.Subscribe {
		if _, ok := seen[s.Name]; ok {
			errs = append(errs, errors.AlreadyExistsf("subscribe %s", s.Name))
		}
		seen[s.Name] = struct{}{}
		if err := s.Options().Validate(); err != nil {
			errs = append(errs, errors.Annotatef(err, "subscribe %s", s.Name))
		}
	}
	seen = make(map[string]struct{}, len(c.Publish))
	for _, p := range c.Publish {
		if _, ok := seen[p.Name]; ok {
			errs = append(errs, errors.AlreadyExistsf("publish %s", p.Name))
		}
		seen[p.Name] = struct{}{}
		if p.Name == "" || !strings.HasPrefix(p.Name, "/") {
			errs = append(errs, errors.NotValidf("publish name=%q", p.Name))
		}
		if !nt.KnownType(p.Type) {
			errs = append(errs, errors.NotValidf("publish %s type=%q", p.Name, p.Type))
		}
		if err := p.Options().Validate(); err != nil {
			errs = append(errs, errors.Annotatef(err, "publish %s", p.Name))
		}
	}
	return errs
}

// ReadConfig parses HCL and checks all fields, errors are folded into one.
func ReadConfig(b []byte) (*Config, error) {
	c := &Config{}
	if err := hcl.Unmarshal(b, c); err != nil {
		return nil, errors.Annotate(err, "config unmarshal")
	}
	return c, helpers.FoldErrors(c.validate())
}

func ReadConfigFile(path string) (*Config, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "config path=%s", path)
	}
	c, err := ReadConfig(b)
	return c, errors.Annotatef(err, "config path=%s", path)
}
