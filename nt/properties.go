package nt

import (
	"encoding/json"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/juju/errors"
)

const (
	PropPersistent = "persistent"
	PropRetained   = "retained"
	PropCached     = "cached"
)

// Properties is open JSON object attached to a topic.
// Updates are JSON merge patches: null value removes a key.
type Properties map[string]interface{}

func (p Properties) Clone() Properties {
	c := make(Properties, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

func (p Properties) flag(key string) bool {
	b, _ := p[key].(bool)
	return b
}

func (p Properties) Persistent() bool { return p.flag(PropPersistent) }
func (p Properties) Retained() bool   { return p.flag(PropRetained) }

// Cached defaults to true when absent.
func (p Properties) Cached() bool {
	if b, ok := p[PropCached].(bool); ok {
		return b
	}
	return true
}

// Merge applies update as merge patch and returns new Properties, p is not modified.
func (p Properties) Merge(update Properties) (Properties, error) {
	if len(update) == 0 {
		return p.Clone(), nil
	}
	doc, err := json.Marshal(p.nonNil())
	if err != nil {
		return nil, errors.Annotate(err, "properties marshal")
	}
	patch, err := json.Marshal(update)
	if err != nil {
		return nil, errors.Annotate(err, "properties update marshal")
	}
	merged, err := jsonpatch.MergePatch(doc, patch)
	if err != nil {
		return nil, errors.Annotate(err, "properties merge")
	}
	result := Properties{}
	if err = json.Unmarshal(merged, &result); err != nil {
		return nil, errors.Annotate(err, "properties unmarshal")
	}
	return result, nil
}

func (p Properties) nonNil() Properties {
	if p == nil {
		return Properties{}
	}
	return p
}
