package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/ntsync/helpers/cli"
	"github.com/temoto/ntsync/log2"
	"github.com/temoto/ntsync/nt"
	nt_config "github.com/temoto/ntsync/nt/config"
	"github.com/temoto/ntsync/nt/wire"
)

func testApp(t testing.TB, config string) (*app, *bytes.Buffer) {
	cfg, err := nt_config.ReadConfig([]byte(config))
	require.NoError(t, err)
	out := &bytes.Buffer{}
	a := newApp(cfg, log2.NewTest(t, log2.LDebug), out)
	require.NoError(t, a.configure(cfg))
	return a, out
}

func TestConsole(t *testing.T) {
	t.Parallel()
	a, out := testApp(t, `server_url = "ws://localhost"`)

	type Case struct {
		line   string
		expect string
	}
	cases := []Case{
		{"pub /dash/x double", ""},
		{"pub /dash/x double", "error: publish /dash/x already exists\n"},
		{"pub /dash/y dobule", "error: publish /dash/y type=\"dobule\" not valid\n"},
		{"set /dash/x 1.5", ""},
		{"set /none 1", "error: publish /none not found\n"},
		{"set /dash/x abc", "error: set /dash/x: double: strconv.ParseFloat: parsing \"abc\": invalid syntax\n"},
		{"set /dash/x", "error: set needs 2 arguments not valid\n"},
		{"unpub /dash/x", ""},
		{"unpub /dash/x", "error: publish /dash/x not found\n"},
		{"sub /robot/", ""},
		{"sub /robot/", "error: subscribe /robot/ already exists\n"},
		{"unsub /robot/", ""},
		{"unsub /robot/", "error: subscribe /robot/ not found\n"},
		{"bogus", "error: command \"bogus\" not supported\n"},
	}
	for _, c := range cases {
		out.Reset()
		a.exec(c.line)
		assert.Equal(t, c.expect, out.String(), c.line)
	}

	out.Reset()
	a.exec("help")
	assert.Contains(t, out.String(), "set\tset <name> <value>")
	out.Reset()
	a.exec("stat")
	assert.Contains(t, out.String(), `"pings":0`)
}

func TestConsoleReceive(t *testing.T) {
	t.Parallel()
	a, out := testApp(t, `server_url = "ws://localhost"`)
	script := strings.Join([]string{"sub /srv/", "", "  topics  "}, "\n")

	a.session.OnText([]byte(`[{"method":"announce","params":{"name":"/srv/v","id":5,"type":"double","properties":{"retained":true}}}]`))
	assert.Equal(t, "announce /srv/v type=double properties=map[retained:true]\n", out.String())
	out.Reset()
	b, err := wire.EncodeBinary(5, 777, nt.MakeDouble(3.5, 0))
	require.NoError(t, err)
	a.session.OnBinary(1000, b)
	assert.Equal(t, "/srv/v = (double 3.5 time=777 server_time=777)\n", out.String())

	out.Reset()
	require.NoError(t, cli.ReadLines(strings.NewReader(script), a.exec))
	assert.Equal(t, "/srv/v type=double id=5 last=(double 3.5 time=777 server_time=777)\n", out.String())

	out.Reset()
	a.session.Disconnected("test")
	assert.Equal(t, "unannounce /srv/v\n", out.String())
	out.Reset()
	a.exec("topics")
	assert.Equal(t, "/srv/v type=double unannounced last=(double 3.5 time=777 server_time=777)\n", out.String())
}

func TestConfigure(t *testing.T) {
	t.Parallel()
	a, _ := testApp(t, `
server_url = "ws://localhost"
ping_interval_ms = 1000
subscribe "/robot/" { prefix = true }
publish "/dash/ping" { type = "int" periodic = 0.02 retained = true }
`)
	assert.Contains(t, a.subs, "/robot/")
	require.Contains(t, a.pubs, "/dash/ping")
	assert.Equal(t, nt.TypeInteger, a.pubs["/dash/ping"].typ)
	assert.Equal(t, "20ms", a.session.Period().String())
	assert.NoError(t, a.set("/dash/ping", "42"))

	cfg, err := nt_config.ReadConfig([]byte(`server_url = "ws://localhost"
publish "/dash/ping" { type = "int" }`))
	require.NoError(t, err)
	err = a.configure(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}
