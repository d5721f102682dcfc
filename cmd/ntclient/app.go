package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/ntsync/helpers"
	"github.com/temoto/ntsync/helpers/atomic_clock"
	"github.com/temoto/ntsync/log2"
	"github.com/temoto/ntsync/nt"
	"github.com/temoto/ntsync/nt/client"
	nt_config "github.com/temoto/ntsync/nt/config"
	"github.com/temoto/ntsync/nt/local"
)

type publication struct {
	uid int64
	typ nt.Type
}

// app binds session, local store and console commands.
type app struct {
	sync.Mutex
	log     *log2.Log
	out     io.Writer
	store   *local.Store
	session *client.Session

	pubs    map[string]publication
	subs    map[string]int64
	nextPub int64
	nextSub int64
}

func newApp(cfg *nt_config.Config, log *log2.Log, out io.Writer) *app {
	store := local.NewStore(log)
	a := &app{
		log:   log,
		out:   out,
		store: store,
		session: client.NewSession(store, client.Options{
			Log:          log,
			PingInterval: cfg.PingInterval(),
		}),
		pubs: make(map[string]publication),
		subs: make(map[string]int64),
	}
	store.Listen(a.printEvent)
	return a
}

// configure applies subscribe and publish blocks.
func (a *app) configure(cfg *nt_config.Config) error {
	errs := make([]error, 0)
	for _, sc := range cfg.Subscribe {
		if err := a.subscribe(sc.Name, sc.Options()); err != nil {
			errs = append(errs, err)
		}
	}
	for _, pc := range cfg.Publish {
		if err := a.publish(pc.Name, pc.Type, pc.Properties(), pc.Options()); err != nil {
			errs = append(errs, err)
		}
	}
	return helpers.FoldErrors(errs)
}

func (a *app) subscribe(prefix string, opts nt.PubSubOptions) error {
	a.Lock()
	defer a.Unlock()
	if _, ok := a.subs[prefix]; ok {
		return errors.AlreadyExistsf("subscribe %s", prefix)
	}
	a.nextSub++
	if err := a.session.Subscribe(a.nextSub, []string{prefix}, opts); err != nil {
		return errors.Annotatef(err, "subscribe %s", prefix)
	}
	a.subs[prefix] = a.nextSub
	return nil
}

func (a *app) unsubscribe(prefix string) error {
	a.Lock()
	defer a.Unlock()
	uid, ok := a.subs[prefix]
	if !ok {
		return errors.NotFoundf("subscribe %s", prefix)
	}
	a.session.Unsubscribe(uid)
	delete(a.subs, prefix)
	return nil
}

func (a *app) publish(name, typ string, props nt.Properties, opts nt.PubSubOptions) error {
	if !nt.KnownType(typ) {
		return errors.NotValidf("publish %s type=%q", name, typ)
	}
	a.Lock()
	defer a.Unlock()
	if _, ok := a.pubs[name]; ok {
		return errors.AlreadyExistsf("publish %s", name)
	}
	a.nextPub++
	if err := a.session.Publish(a.nextPub, name, typ, props, opts); err != nil {
		return errors.Annotatef(err, "publish %s", name)
	}
	a.pubs[name] = publication{uid: a.nextPub, typ: nt.TypeFromString(typ)}
	return nil
}

func (a *app) unpublish(name string) error {
	a.Lock()
	defer a.Unlock()
	p, ok := a.pubs[name]
	if !ok {
		return errors.NotFoundf("publish %s", name)
	}
	a.session.Unpublish(p.uid)
	delete(a.pubs, name)
	return nil
}

func (a *app) set(name, input string) error {
	a.Lock()
	p, ok := a.pubs[name]
	a.Unlock()
	if !ok {
		return errors.NotFoundf("publish %s", name)
	}
	v, err := nt.ParseValue(p.typ, input, atomic_clock.Source())
	if err != nil {
		return errors.Annotatef(err, "set %s", name)
	}
	return a.session.SetValue(p.uid, v)
}

func (a *app) printEvent(e local.Event) {
	switch e.Kind {
	case local.EventValue:
		fmt.Fprintf(a.out, "%s = %s\n", e.Name, e.Value.String())
	case local.EventAnnounce:
		fmt.Fprintf(a.out, "announce %s type=%s properties=%v\n", e.Name, e.Type, e.Properties)
	case local.EventUnannounce:
		fmt.Fprintf(a.out, "unannounce %s\n", e.Name)
	case local.EventProperties:
		fmt.Fprintf(a.out, "properties %s %v\n", e.Name, e.Properties)
	}
}

func (a *app) printTopics() {
	for _, t := range a.store.Topics() {
		state := "unannounced"
		if t.Announced {
			state = fmt.Sprintf("id=%d", t.ID)
		}
		last := "-"
		if t.Last.IsValid() {
			last = t.Last.String()
		}
		fmt.Fprintf(a.out, "%s type=%s %s last=%s\n", t.Name, t.Type, state, last)
	}
}

var consoleSuggest = []prompt.Suggest{
	{Text: "set", Description: "set <name> <value> send value of own publication"},
	{Text: "pub", Description: "pub <name> <type> publish topic"},
	{Text: "unpub", Description: "unpub <name>"},
	{Text: "sub", Description: "sub <prefix> subscribe topics by prefix"},
	{Text: "unsub", Description: "unsub <prefix>"},
	{Text: "topics", Description: "list known topics"},
	{Text: "stat", Description: "session counters"},
	{Text: "help"},
}

func (a *app) exec(line string) {
	if err := a.execErr(line); err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
	}
}

func (a *app) execErr(line string) error {
	parts := strings.SplitN(line, " ", 3)
	cmd, args := parts[0], parts[1:]
	need := func(n int) error {
		if len(args) < n {
			return errors.NotValidf("%s needs %d arguments", cmd, n)
		}
		return nil
	}
	switch cmd {
	case "set":
		if err := need(2); err != nil {
			return err
		}
		return a.set(args[0], args[1])
	case "pub":
		if err := need(2); err != nil {
			return err
		}
		return a.publish(args[0], args[1], nil, nt.NewOptions())
	case "unpub":
		if err := need(1); err != nil {
			return err
		}
		return a.unpublish(args[0])
	case "sub":
		if err := need(1); err != nil {
			return err
		}
		return a.subscribe(args[0], nt.NewOptions(nt.WithPrefixMatch(true)))
	case "unsub":
		if err := need(1); err != nil {
			return err
		}
		return a.unsubscribe(args[0])
	case "topics":
		a.printTopics()
	case "stat":
		fmt.Fprintln(a.out, a.session.Stat().String())
	case "help":
		for _, s := range consoleSuggest {
			fmt.Fprintf(a.out, "%s\t%s\n", s.Text, s.Description)
		}
	default:
		return errors.NotSupportedf("command %q", cmd)
	}
	return nil
}
