package coupon

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Params is a coupon's ordered rule configuration. The JSON object order of
// the original document is the rule execution order, so params are kept as
// slices rather than maps.
type Params []NamespaceParams

// NamespaceParams groups the rules of one namespace ("pricing" or "queuing").
type NamespaceParams struct {
	Namespace string
	Rules     []RuleArg
}

// RuleArg is a single rule invocation: the rule name and its raw JSON
// argument. Each rule decodes the argument itself.
type RuleArg struct {
	Name string
	Arg  jx.Raw
}

// ParseParams decodes a params JSON document, e.g.
// {"pricing":{"percent":-15},"queuing":{"vip":1}}, preserving key order.
func ParseParams(raw []byte) (Params, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var p Params
	d := jx.DecodeBytes(raw)
	if err := d.Obj(func(d *jx.Decoder, namespace string) error {
		ns := NamespaceParams{Namespace: namespace}
		if err := d.Obj(func(d *jx.Decoder, name string) error {
			arg, err := d.Raw()
			if err != nil {
				return err
			}
			// Raw may alias the decoder's buffer.
			ns.Rules = append(ns.Rules, RuleArg{Name: name, Arg: append(jx.Raw(nil), arg...)})
			return nil
		}); err != nil {
			return err
		}
		p = append(p, ns)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "parse coupon params")
	}
	return p, nil
}

// Encode renders the params back to their canonical JSON form.
func (p Params) Encode() []byte {
	var e jx.Encoder
	e.ObjStart()
	for _, ns := range p {
		e.FieldStart(ns.Namespace)
		e.ObjStart()
		for _, r := range ns.Rules {
			e.FieldStart(r.Name)
			e.Raw(r.Arg)
		}
		e.ObjEnd()
	}
	e.ObjEnd()
	return e.Bytes()
}

// MarshalJSON implements json.Marshaler.
func (p Params) MarshalJSON() ([]byte, error) {
	return p.Encode(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Params) UnmarshalJSON(data []byte) error {
	parsed, err := ParseParams(data)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// containsRuleName reports whether any rule name in any namespace contains
// the given substring.
func (p Params) containsRuleName(substr string) bool {
	for _, ns := range p {
		for _, r := range ns.Rules {
			if strings.Contains(r.Name, substr) {
				return true
			}
		}
	}
	return false
}
