package local_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/ntsync/log2"
	"github.com/temoto/ntsync/nt"
	"github.com/temoto/ntsync/nt/client"
	"github.com/temoto/ntsync/nt/local"
	"github.com/temoto/ntsync/nt/wire"
)

func TestStoreHandles(t *testing.T) {
	t.Parallel()
	st := local.NewStore(log2.NewTest(t, log2.LDebug))

	h := st.GetOrCreate("/a")
	assert.Equal(t, h, st.GetOrCreate("/a"))
	assert.NotEqual(t, h, st.GetOrCreate("/b"))

	pubuid := int64(3)
	assert.Equal(t, h, st.Announce("/a", 10, "double", nt.Properties{"retained": true}, &pubuid))
	info, ok := st.Topic("/a")
	require.True(t, ok)
	assert.True(t, info.Announced)
	assert.Equal(t, int64(10), info.ID)
	assert.Equal(t, "double", info.Type)
	assert.Equal(t, &pubuid, info.PubUID)
	assert.True(t, info.Properties.Retained())

	// stale unannounce for previous id is ignored
	st.Unannounce("/a", 9)
	info, _ = st.Topic("/a")
	assert.True(t, info.Announced)
	st.Unannounce("/a", 10)
	st.Unannounce("/none", 1)
	info, _ = st.Topic("/a")
	assert.False(t, info.Announced)
	assert.Equal(t, h, st.Announce("/a", 11, "double", nil, nil), "handle stable across announces")

	names := []string{}
	for _, ti := range st.Topics() {
		names = append(names, ti.Name)
	}
	assert.Equal(t, []string{"/a", "/b"}, names)
	_, ok = st.Topic("/c")
	assert.False(t, ok)
}

func TestStoreEvents(t *testing.T) {
	t.Parallel()
	st := local.NewStore(log2.NewTest(t, log2.LDebug))
	var events []local.Event
	st.Listen(func(e local.Event) { events = append(events, e) })

	h := st.Announce("/a", 1, "int", nt.Properties{"x": 1.0}, nil)
	st.PropertiesUpdate("/a", nt.Properties{"x": nil, "y": true}, false)
	st.SetValue(h, nt.MakeInteger(5, 0))
	st.SetValue(99, nt.MakeInteger(5, 0))
	st.Unannounce("/a", 1)

	kinds := []local.EventKind{}
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []local.EventKind{local.EventAnnounce, local.EventProperties, local.EventValue, local.EventUnannounce}, kinds)
	assert.Equal(t, int64(5), events[2].Value.Integer())
	assert.Equal(t, "value", events[2].Kind.String())
	info, _ := st.Topic("/a")
	assert.Equal(t, nt.Properties{"y": true}, info.Properties)
	assert.Equal(t, int64(5), info.Last.Integer())
}

func TestStoreSubscriber(t *testing.T) {
	t.Parallel()
	st := local.NewStore(nil)
	ha := st.GetOrCreate("/robot/a")
	hb := st.GetOrCreate("/robot/b")
	hc := st.GetOrCreate("/other")

	exact := st.Subscribe([]string{"/robot/a"}, nt.PubSubOptions{})
	prefix := st.Subscribe([]string{"/robot/"}, nt.NewOptions(nt.WithPrefixMatch(true), nt.WithSendAll(true), nt.WithPollStorage(3)))
	dups := st.Subscribe([]string{"/robot/a"}, nt.NewOptions(nt.WithKeepDuplicates(true), nt.WithPollStorage(5)))
	topicsOnly := st.Subscribe([]string{"/robot/"}, nt.NewOptions(nt.WithPrefixMatch(true), nt.WithTopicsOnly(true)))

	st.SetValue(ha, nt.MakeDouble(1, 0))
	st.SetValue(ha, nt.MakeDouble(1, 0))
	st.SetValue(hb, nt.MakeDouble(2, 0))
	st.SetValue(hc, nt.MakeDouble(3, 0))
	st.SetValue(ha, nt.MakeDouble(4, 0))

	values := func(us []local.Update) []float64 {
		r := []float64{}
		for _, u := range us {
			r = append(r, u.Value.Double())
		}
		return r
	}
	assert.Equal(t, []float64{4}, values(st.Read(exact)), "depth 1 keeps latest")
	assert.Equal(t, []float64{1, 2, 4}, values(st.Read(prefix)), "duplicate suppressed, /other not matched")
	assert.Equal(t, []float64{1, 1, 4}, values(st.Read(dups)))
	assert.Len(t, st.Read(topicsOnly), 0)
	assert.Len(t, st.Read(exact), 0, "read forgets")

	for i := 0; i < 5; i++ {
		st.SetValue(hb, nt.MakeDouble(float64(10+i), 0))
	}
	assert.Equal(t, []float64{12, 13, 14}, values(st.Read(prefix)), "oldest dropped")

	st.Unsubscribe(prefix)
	st.SetValue(hb, nt.MakeDouble(100, 0))
	assert.Len(t, st.Read(prefix), 0)
}

// Store wired to session receives announce then value.
func TestStoreWithSession(t *testing.T) {
	t.Parallel()
	st := local.NewStore(log2.NewTest(t, log2.LDebug))
	s := client.NewSession(st, client.Options{Log: log2.NewTest(t, log2.LDebug)})
	s.OnText([]byte(`[{"method":"announce","params":{"name":"/fms/matchTime","id":7,"type":"double","properties":{}}}]`))
	b, err := wire.EncodeBinary(7, 1000, nt.MakeDouble(42, 0))
	require.NoError(t, err)
	s.OnBinary(1, b)

	info, ok := st.Topic("/fms/matchTime")
	require.True(t, ok)
	assert.Equal(t, 42.0, info.Last.Double())
	assert.Equal(t, int64(1000), info.Last.ServerTime())

	s.Disconnected("test")
	info, _ = st.Topic("/fms/matchTime")
	assert.False(t, info.Announced)
}
