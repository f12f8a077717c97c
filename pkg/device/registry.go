package device

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// PartMask ignores the four version bits of an IDCODE.
const PartMask = 0x0fffffff

// Part is one entry of the IDCODE table.
type Part struct {
	Name   string
	IDCode uint32
	Mask   uint32
	Family Family
	// BTC is the XSC_DATA_BTC word programmed into XCF..P parts.
	BTC uint32
}

// Info returns the family entry of the part.
func (p Part) Info() FamilyInfo {
	return families[p.Family]
}

// Parts is the built-in table of supported devices.
var Parts = []Part{
	{Name: "xcf01s", IDCode: 0x05044093, Mask: PartMask, Family: XCFS},
	{Name: "xcf02s", IDCode: 0x05045093, Mask: PartMask, Family: XCFS},
	{Name: "xcf04s", IDCode: 0x05046093, Mask: PartMask, Family: XCFS},
	{Name: "xcf08p", IDCode: 0x05057093, Mask: PartMask, Family: XCFP, BTC: 0xffffffe0},
	{Name: "xcf16p", IDCode: 0x05058093, Mask: PartMask, Family: XCFP, BTC: 0xffffffe4},
	{Name: "xcf32p", IDCode: 0x05059093, Mask: PartMask, Family: XCFP, BTC: 0xffffffec},

	{Name: "xc3s200", IDCode: 0x01414093, Mask: PartMask, Family: XC3S},
	{Name: "xc3s400", IDCode: 0x0141c093, Mask: PartMask, Family: XC3S},
	{Name: "xc3s1000", IDCode: 0x01428093, Mask: PartMask, Family: XC3S},

	{Name: "xc5vlx30t", IDCode: 0x02a56093, Mask: PartMask, Family: XC5V},
	{Name: "xc5vlx50t", IDCode: 0x02a66093, Mask: PartMask, Family: XC5V},
	{Name: "xc5vlx110t", IDCode: 0x02ad6093, Mask: PartMask, Family: XC5V},

	{Name: "xc6vlx130t", IDCode: 0x0424a093, Mask: PartMask, Family: XC6V},
	{Name: "xc6vlx240t", IDCode: 0x04250093, Mask: PartMask, Family: XC6V},

	{Name: "xc6slx9", IDCode: 0x04001093, Mask: PartMask, Family: XC6S},
	{Name: "xc6slx16", IDCode: 0x04002093, Mask: PartMask, Family: XC6S},
	{Name: "xc6slx45", IDCode: 0x04008093, Mask: PartMask, Family: XC6S},
	{Name: "xc6slx150", IDCode: 0x0401d093, Mask: PartMask, Family: XC6S},

	{Name: "xc7a35t", IDCode: 0x0362d093, Mask: PartMask, Family: XC7A},
	{Name: "xc7a100t", IDCode: 0x03631093, Mask: PartMask, Family: XC7A},
	{Name: "xc7a200t", IDCode: 0x03636093, Mask: PartMask, Family: XC7A},
	{Name: "xc7k160t", IDCode: 0x0364c093, Mask: PartMask, Family: XC7K},
	{Name: "xc7k325t", IDCode: 0x03651093, Mask: PartMask, Family: XC7K},
	{Name: "xc7z010", IDCode: 0x03722093, Mask: PartMask, Family: XC7Z},
	{Name: "xc7z020", IDCode: 0x03727093, Mask: PartMask, Family: XC7Z},
}

// Registry matches IDCODEs and part names against a part table. Exact
// (full mask) entries are looked up first, then masked entries in insertion
// order.
type Registry struct {
	mu     sync.RWMutex
	exact  map[uint32]Part
	masked []Part
	byName map[string]Part
}

// NewRegistry returns a registry preloaded with parts.
func NewRegistry(parts ...Part) *Registry {
	r := &Registry{
		exact:  make(map[uint32]Part),
		byName: make(map[string]Part),
	}
	for _, p := range parts {
		r.Add(p)
	}
	return r
}

// Default returns a registry holding the built-in Parts table.
func Default() *Registry {
	return NewRegistry(Parts...)
}

// Add registers a part. A zero mask means an exact match.
func (r *Registry) Add(p Part) {
	if p.Mask == 0 {
		p.Mask = 0xffffffff
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Mask == 0xffffffff {
		r.exact[p.IDCode] = p
	} else {
		r.masked = append(r.masked, p)
	}
	r.byName[strings.ToLower(p.Name)] = p
}

// Match returns the part whose IDCODE matches id.
func (r *Registry) Match(id uint32) (Part, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.exact[id]; ok {
		return p, true
	}
	for _, p := range r.masked {
		if id&p.Mask == p.IDCode&p.Mask {
			return p, true
		}
	}
	return Part{}, false
}

// LookupPart finds a part by name, with or without the "xc" prefix.
func (r *Registry) LookupPart(name string) (Part, bool) {
	name = strings.ToLower(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.byName[name]; ok {
		return p, true
	}
	p, ok := r.byName["xc"+name]
	return p, ok
}

// Names returns every registered part name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve accepts a part name or a family code and returns the family. The
// part is returned too when name was a part.
func (r *Registry) Resolve(name string) (FamilyInfo, Part, error) {
	if p, ok := r.LookupPart(name); ok {
		return p.Info(), p, nil
	}
	if info, ok := FamilyByCode(name); ok {
		return info, Part{}, nil
	}
	return FamilyInfo{}, Part{}, fmt.Errorf("device: no such xilinx device %q", name)
}
