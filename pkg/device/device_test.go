package device

import (
	"math/bits"
	"strings"
	"testing"
)

func TestFamilyForDevice(t *testing.T) {
	tests := []struct {
		device string
		want   Family
	}{
		{"5vlx30tff665", XC5V},
		{"xc5vlx50t", XC5V},
		{"6slx45fgg484", XC6S},
		{"3s400pq208", XC3S},
		{"6vlx130tff1156", XC6V},
		{"7a100tcsg324", XC7A},
		{"7k325tffg900", XC7K},
		{"XC7Z020", XC7Z},
	}
	for _, tt := range tests {
		info, err := FamilyForDevice(tt.device)
		if err != nil {
			t.Errorf("FamilyForDevice(%q): %v", tt.device, err)
			continue
		}
		if info.Family != tt.want {
			t.Errorf("FamilyForDevice(%q) = %s, want %s", tt.device, info.Family, tt.want)
		}
	}

	for _, bad := range []string{"4vfx60", "x", "", "fp32"} {
		if _, err := FamilyForDevice(bad); err == nil {
			t.Errorf("FamilyForDevice(%q) accepted an unsupported device", bad)
		}
	}
}

func TestFamilyTables(t *testing.T) {
	v5, _ := Info(XC5V)
	if v5.IRWidth != 10 || v5.MustOpcode(JPROG) != 0x3cb || v5.IRCapture != 0x3c1 {
		t.Errorf("virtex-5 entry = %+v", v5)
	}
	s6, _ := Info(XC6S)
	if s6.IRWidth != 6 || s6.MustOpcode(CFGIN) != 0x05 || len(s6.ReadStatus) != 4 {
		t.Errorf("spartan-6 entry = %+v", s6)
	}
	if s6.StatusMask != 0xd00f || s6.StatusExpected != 0x100c {
		t.Errorf("spartan-6 status = %x/%x", s6.StatusMask, s6.StatusExpected)
	}
	a7, _ := Info(XC7A)
	if bits.Reverse32(a7.StatusMask) != 0x0001d8f1 || bits.Reverse32(a7.StatusExpected) != 0x58f0 {
		t.Errorf("7-series status = %x/%x", a7.StatusMask, a7.StatusExpected)
	}
	if a7.StatusExpected&^a7.StatusMask != 0 {
		t.Error("7-series expected has bits outside the mask")
	}
	// STAT of a started part: startup bits, some mode pins (bits
	// 10..8) and a 32-bit bus width (bits 26..25), before CFGOUT reverses it.
	started := uint32(stat7Started | 0x300 | 0x6000000)
	for _, tt := range []struct {
		name string
		stat uint32
		ok   bool
	}{
		{"started", started, true},
		{"crc error", started | stat7CRCError, false},
		{"id error", started | stat7IDError, false},
		{"not done", started &^ stat7Done, false},
		{"gwe low", started &^ stat7GWE, false},
	} {
		if got := bits.Reverse32(tt.stat)&a7.StatusMask == a7.StatusExpected; got != tt.ok {
			t.Errorf("7-series STAT %s (0x%08x) accepted = %t, want %t", tt.name, tt.stat, got, tt.ok)
		}
	}

	p, _ := Info(XCFP)
	if p.IRWidth != 16 || !p.PROM || p.MustOpcode(XSCUnlock) != 0xaa55 || p.MustOpcode(BYPASS) != 0xffff {
		t.Errorf("xcf-p entry = %+v", p)
	}
	if _, err := v5.Opcode(ISPEN); err == nil {
		t.Error("virtex-5 has no ISPEN")
	}

	if got := len(Families()); got != int(numFamilies)-1 {
		t.Errorf("Families() has %d entries", got)
	}
	for _, fi := range Families() {
		if fi.Name == "" || fi.IRWidth == 0 {
			t.Errorf("incomplete family %+v", fi)
		}
		if _, err := fi.Opcode(IDCODE); err != nil {
			t.Errorf("%s: %v", fi.Name, err)
		}
	}
}

func TestFamilyByCode(t *testing.T) {
	for code, want := range map[string]Family{"5v": XC5V, "xc6s": XC6S, "XC3S": XC3S, "fp": XCFP} {
		info, ok := FamilyByCode(code)
		if !ok || info.Family != want {
			t.Errorf("FamilyByCode(%q) = %v, %v", code, info.Family, ok)
		}
	}
	if _, ok := FamilyByCode("9z"); ok {
		t.Error("FamilyByCode accepted an unknown code")
	}
}

func TestRegistryMatch(t *testing.T) {
	r := Default()

	tests := []struct {
		id   uint32
		name string
	}{
		{0x05058093, "xcf16p"},
		{0xd5059093, "xcf32p"}, // version bits ignored
		{0x24008093, "xc6slx45"},
		{0x02a56093, "xc5vlx30t"},
	}
	for _, tt := range tests {
		p, ok := r.Match(tt.id)
		if !ok || p.Name != tt.name {
			t.Errorf("Match(%08x) = %q, %v; want %q", tt.id, p.Name, ok, tt.name)
		}
	}
	if _, ok := r.Match(0x12345679); ok {
		t.Error("Match accepted an unknown IDCODE")
	}

	r.Add(Part{Name: "custom", IDCode: 0x12345679})
	if p, ok := r.Match(0x12345679); !ok || p.Name != "custom" {
		t.Errorf("exact Match = %+v, %v", p, ok)
	}
	if _, ok := r.Match(0x22345679); ok {
		t.Error("exact entry matched a different version")
	}
}

func TestRegistryLookup(t *testing.T) {
	r := Default()
	for _, name := range []string{"xcf32p", "f32p", "XC6SLX45", "6slx45"} {
		if _, ok := r.LookupPart(name); !ok {
			t.Errorf("LookupPart(%q) failed", name)
		}
	}
	for _, name := range []string{"cf32p", "c6slx45", "xcxcf32p", ""} {
		if p, ok := r.LookupPart(name); ok {
			t.Errorf("LookupPart(%q) = %q, want no match", name, p.Name)
		}
	}
	p, _ := r.LookupPart("xcf08p")
	if p.BTC != 0xffffffe0 || p.Info().Family != XCFP {
		t.Errorf("xcf08p = %+v", p)
	}

	fi, part, err := r.Resolve("5v")
	if err != nil || fi.Family != XC5V || part.Name != "" {
		t.Errorf("Resolve(5v) = %v, %+v, %v", fi.Family, part, err)
	}
	fi, part, err = r.Resolve("xc7a35t")
	if err != nil || fi.Family != XC7A || part.Name != "xc7a35t" {
		t.Errorf("Resolve(xc7a35t) = %v, %+v, %v", fi.Family, part, err)
	}
	if _, _, err := r.Resolve("nonsense"); err == nil || !strings.Contains(err.Error(), "no such") {
		t.Errorf("Resolve(nonsense) error = %v", err)
	}

	names := r.Names()
	if len(names) != len(Parts) || names[0] > names[len(names)-1] {
		t.Errorf("Names() = %v", names)
	}
}

func TestParseIDCode(t *testing.T) {
	id := ParseIDCode(0x25058093)
	if id.Version != 2 || id.PartNumber != 0x5058 || id.Manufacturer != 0x049 || !id.Valid() {
		t.Errorf("ParseIDCode = %+v", id)
	}
	if got := ManufacturerName(id.Manufacturer); got != "Xilinx" {
		t.Errorf("ManufacturerName = %q", got)
	}
	if got := ManufacturerName(0x7fe); got != "0x7fe" {
		t.Errorf("ManufacturerName(unknown) = %q", got)
	}
	if s := id.String(); !strings.Contains(s, "Xilinx") || !strings.HasPrefix(s, "25058093") {
		t.Errorf("String() = %q", s)
	}
}
