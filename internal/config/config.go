// Package config reads HCL configuration with include support.
package config

import (
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/kjh948/plen3/helpers"
	"github.com/kjh948/plen3/internal/link"
	"github.com/kjh948/plen3/internal/tele"
	"github.com/kjh948/plen3/log2"
)

const (
	DefaultNamePrefix  = "ViVi-"
	DefaultAPPass      = "12345678xyz"
	DefaultTick        = time.Second
	DefaultConnect     = 10 * time.Second
	DefaultStoreRoot   = "/var/lib/plen/fs"
	DefaultExtremoPath = "/var/lib/plen/wifi"
	DefaultUpdateLimit = 64 << 20
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []Source `hcl:"include"`

	Device struct {
		// Name overrides generated "<prefix><id>"
		Name       string `hcl:"name"`
		NamePrefix string `hcl:"name_prefix"`
		// ID is hex chip id, empty means derive from interface MAC
		ID               string `hcl:"id"`
		CounterClockwise bool   `hcl:"counter_clockwise"`
		LogDebug         bool   `hcl:"log_debug"`
	}

	Link struct {
		// Radio is "nm" (NetworkManager) or "mock"
		Radio               string `hcl:"radio"`
		Interface           string `hcl:"interface"`
		Nmcli               string `hcl:"nmcli"`
		TickMs              int    `hcl:"tick_ms"`
		ConnectTimeoutSec   int    `hcl:"connect_timeout_sec"`
		ProvisionTimeoutSec int    `hcl:"provision_timeout_sec"`
		// CredentialStore is "file" (plain text in store root) or "extremo"
		CredentialStore string `hcl:"credential_store"`
		CredentialPath  string `hcl:"credential_path"`
		Credentials     struct {
			SSID       string `hcl:"ssid"`
			Passphrase string `hcl:"passphrase"`
		} `hcl:"credentials"`
		AccessPoint struct {
			Passphrase string `hcl:"passphrase"`
		} `hcl:"access_point"`
		Provision struct {
			Enable        bool   `hcl:"enable"`
			CaptureListen string `hcl:"capture_listen"`
			ButtonDevice  string `hcl:"button_device"`
			ButtonCode    int    `hcl:"button_code"`
		} `hcl:"provision"`
	}

	Store struct {
		Root string `hcl:"root"`
	}

	Service struct {
		HTTPListen        string `hcl:"http_listen"`
		PassthroughListen string `hcl:"passthrough_listen"`
		MDNS              bool   `hcl:"mdns"`
	}

	Beacon struct {
		Disable bool   `hcl:"disable"`
		Addr    string `hcl:"addr"`
	}

	Robot struct {
		Enable      bool   `hcl:"enable"`
		I2CBus      string `hcl:"i2c_bus"`
		PCA9685Addr int    `hcl:"pca9685_addr"`
		JointsPath  string `hcl:"joints_path"`
		MotionDir   string `hcl:"motion_dir"`
	}

	Hardware struct {
		AnalogPath string   `hcl:"analog_path"`
		GPIOChip   string   `hcl:"gpio_chip"`
		GPIOLines  []int    `hcl:"gpio_lines"`
	}

	Tele tele.Config `hcl:"tele"`

	Update struct {
		Target  string `hcl:"target"`
		MaxSize int    `hcl:"max_size"`
	}
}

type Source struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) Tick() time.Duration {
	return helpers.IntMillisecondDefault(c.Link.TickMs, DefaultTick)
}

func (c *Config) ConnectTicks() int {
	return helpers.TicksFor(helpers.IntSecondDefault(c.Link.ConnectTimeoutSec, DefaultConnect), c.Tick())
}

// ProvisionTicks 0 means wait forever.
func (c *Config) ProvisionTicks() int {
	if c.Link.ProvisionTimeoutSec <= 0 {
		return 0
	}
	return helpers.TicksFor(time.Duration(c.Link.ProvisionTimeoutSec)*time.Second, c.Tick())
}

func (c *Config) HardcodedCredentials() link.Credentials {
	return link.Credentials{SSID: c.Link.Credentials.SSID, Passphrase: c.Link.Credentials.Passphrase}
}

func (c *Config) AccessPointPass() string {
	return helpers.StringDefault(c.Link.AccessPoint.Passphrase, DefaultAPPass)
}

// DeviceName is "<prefix><id>" unless overridden.
func (c *Config) DeviceName(id string) string {
	if c.Device.Name != "" {
		return c.Device.Name
	}
	return helpers.StringDefault(c.Device.NamePrefix, DefaultNamePrefix) + id
}

// AccessPointName depends on build variant, "ViVi-M-" or "ViVi-N-" prefix.
func (c *Config) AccessPointName(id string) string {
	variant := "M-"
	if c.Device.CounterClockwise {
		variant = "N-"
	}
	return helpers.StringDefault(c.Device.NamePrefix, DefaultNamePrefix) + variant + id
}

func (c *Config) read(log *log2.Log, r Reader, source Source, errs *[]error) {
	path := r.Resolve(source.Name)
	if _, ok := c.includeSeen[path]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, path)
	c.includeSeen[path] = struct{}{}

	bs, err := r.Load(path)
	if errors.IsNotFound(err) {
		if !source.Optional {
			*errs = append(*errs, errors.NotFoundf("config required name=%s path=%s", source.Name, path))
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	if err = hcl.Unmarshal(bs, c); err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s", source.Name)
		*errs = append(*errs, err)
		return
	}

	var includes []Source
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		if _, ok := c.includeSeen[r.Resolve(include.Name)]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, r, include, errs)
	}
}

// Read merges named sources in order, later values override earlier.
func Read(log *log2.Log, r Reader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.Errorf("code error config.Read() without names")
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, r, Source{Name: name}, &errs)
	}
	return c, helpers.FoldErrors(errs)
}

// ReadFile reads config file at path, includes are relative to its directory.
func ReadFile(log *log2.Log, path string) (*Config, error) {
	dir, name := filepath.Split(path)
	r, err := NewDirReader(dir)
	if err != nil {
		return nil, err
	}
	return Read(log, r, name)
}

func MustReadFile(log *log2.Log, path string) *Config {
	c, err := ReadFile(log, path)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
