package config

import (
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/kjh948/plen3/log2"
	"github.com/stretchr/testify/assert"
)

func TestRead(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, *Config)
		expectErr string
	}
	cases := []Case{
		{"empty", "", func(t testing.TB, c *Config) {
			assert.Equal(t, DefaultTick, c.Tick())
			assert.Equal(t, 10, c.ConnectTicks())
			assert.Equal(t, 0, c.ProvisionTicks())
			assert.Equal(t, "ViVi-c0ffee", c.DeviceName("c0ffee"))
			assert.Equal(t, "ViVi-M-c0ffee", c.AccessPointName("c0ffee"))
			assert.Equal(t, DefaultAPPass, c.AccessPointPass())
			assert.False(t, c.HardcodedCredentials().Valid())
		}, ""},

		{"link", `
link {
	radio = "mock"
	tick_ms = 500
	connect_timeout_sec = 3
	provision_timeout_sec = 60
	credentials { ssid = "home" passphrase = "secret" }
	provision { enable = true capture_listen = ":7001" }
}`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "mock", c.Link.Radio)
				assert.Equal(t, 500*time.Millisecond, c.Tick())
				assert.Equal(t, 6, c.ConnectTicks())
				assert.Equal(t, 120, c.ProvisionTicks())
				assert.Equal(t, "home", c.HardcodedCredentials().SSID)
				assert.True(t, c.Link.Provision.Enable)
				assert.Equal(t, ":7001", c.Link.Provision.CaptureListen)
			}, ""},

		{"device", `device { name_prefix = "PLEN-" counter_clockwise = true }
hardware { gpio_lines = [4, 17] }
tele { enable = true mqtt_broker = "tcp://broker:1883" }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "PLEN-1a2b", c.DeviceName("1a2b"))
				assert.Equal(t, "PLEN-N-1a2b", c.AccessPointName("1a2b"))
				assert.Equal(t, []int{4, 17}, c.Hardware.GPIOLines)
				assert.True(t, c.Tele.Enable)
				assert.Equal(t, "tcp://broker:1883", c.Tele.Broker)
			}, ""},

		{"include-normalize", `
service { mdns = true }
include "./empty" {}`,
			nil, ""},

		{"include-optional", `
include "beacon-off" {}
include "non-exist" { optional = true }`,
			func(t testing.TB, c *Config) {
				assert.True(t, c.Beacon.Disable)
			}, ""},

		{"include-overwrites", `
store { root = "/first" }
include "store-root" {}`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "/srv/plen", c.Store.Root)
			}, ""},

		{"error-required", `include "non-exist" {}`, nil, "config required name=non-exist"},
		{"error-syntax", `hello`, nil, "key 'hello' expected start of object"},
		{"error-include-loop", `include "include-loop" {}`, nil, "config include loop: from=include-loop include=include-loop"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			log := log2.NewTest(t, log2.LDebug)
			fs := MapReader{
				"test-inline":  c.input,
				"empty":        "",
				"beacon-off":   "beacon { disable = true }",
				"store-root":   `store { root = "/srv/plen" }`,
				"error-syntax": "hello",
				"include-loop": `include "include-loop" {}`,
			}
			cfg, err := Read(log, fs, "test-inline")
			if c.expectErr == "" {
				if err != nil {
					t.Fatalf("error expected=nil actual='%v'", errors.ErrorStack(err))
				}
				if c.check != nil {
					c.check(t, cfg)
				}
			} else {
				if err == nil || !strings.Contains(err.Error(), c.expectErr) {
					t.Fatalf("error expected='%s' actual='%v'", c.expectErr, err)
				}
			}
		})
	}
}

func TestFunctionalBundled(t *testing.T) {
	// not Parallel
	t.Logf("this test needs OS open|read|stat access to file `../../plen.hcl`")

	log := log2.NewTest(t, log2.LDebug)
	c := MustReadFile(log, "../../plen.hcl")
	assert.Equal(t, "nm", c.Link.Radio)
}
