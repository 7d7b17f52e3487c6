package config

import (
	"github.com/elliotchance/orderedmap/v2"
)

// Preset names.
const (
	PresetDefault = "default"
	PresetTJF     = "tjf"
)

// Preset is a named pair of tag list and tie-break order.
type Preset struct {
	Name  string
	Tags  []string
	Order []string
}

// audioSuiteTags are Pro Tools AudioSuite rendering suffixes.
var audioSuiteTags = []string{
	"-6030_", "-7eqa_", "-A2sA_", "-A44m_", "-A44s_", "-Alt7S_", "-ASMA_",
	"-AVrP_", "-AVrT_", "-AVSt_", "-DEC4_", "-Delays_", "-Dn_", "-DUPL_",
	"-DVerb_", "-GAIN_", "-M2DN_", "-NORM_", "-NYCT_", "-PiSh_", "-PnT2_",
	"-PnTPro_", "-ProQ2_", "-PSh_", "-Reverse_", "-RVRS_", "-RING_",
	"-RX7Cnct_", "-spce_", "-TCEX_", "-TiSh_", "-TmShft_", "-VariFi_",
	"-VlhllVV_", "-VSPD_", "-VitmnMn_", "-VtmnStr_", "-X2mA_", "-X2sA_",
	"-XForm_", "-Z2N5_", "-Z2S5_", "-Z4n2_", "-ZXN5_",
}

var defaultOrder = []string{
	"CASE WHEN Description IS NOT NULL AND Description != '' THEN 0 ELSE 1 END ASC",
	"CASE WHEN pathname LIKE '%Audio Files%' THEN 1 ELSE 0 END ASC",
	"CASE WHEN pathname LIKE '%LIBRARIES%' THEN 0 ELSE 1 END ASC",
	"CASE WHEN pathname LIKE '%LIBRARY%' THEN 0 ELSE 1 END ASC",
	"CASE WHEN pathname LIKE '%/LIBRARY%' THEN 0 ELSE 1 END ASC",
	"CASE WHEN pathname LIKE '%LIBRARY/%' THEN 0 ELSE 1 END ASC",
	"duration DESC",
	"channels DESC",
	"sampleRate DESC",
	"bitDepth DESC",
	"BWDate ASC",
	"scannedDate ASC",
}

var tjfOrder = []string{
	"CASE WHEN pathname LIKE '%TJF RECORDINGS%' THEN 0 ELSE 1 END ASC",
	"CASE WHEN pathname LIKE '%LIBRARIES%' THEN 0 ELSE 1 END ASC",
	"CASE WHEN pathname LIKE '%SHOWS/Tim Farrell%' THEN 1 ELSE 0 END ASC",
	"CASE WHEN Description IS NOT NULL AND Description != '' THEN 0 ELSE 1 END ASC",
	"CASE WHEN pathname LIKE '%Audio Files%' THEN 1 ELSE 0 END ASC",
	"CASE WHEN pathname LIKE '%RECORD%' THEN 0 ELSE 1 END ASC",
	"CASE WHEN pathname LIKE '%CREATED SFX%' THEN 0 ELSE 1 END ASC",
	"CASE WHEN pathname LIKE '%CREATED FX%' THEN 0 ELSE 1 END ASC",
	"CASE WHEN pathname LIKE '%LIBRARY%' THEN 0 ELSE 1 END ASC",
	"CASE WHEN pathname LIKE '%/LIBRARY%' THEN 0 ELSE 1 END ASC",
	"CASE WHEN pathname LIKE '%LIBRARY/%' THEN 0 ELSE 1 END ASC",
	"CASE WHEN pathname LIKE '%SIGNATURE%' THEN 0 ELSE 1 END ASC",
	"CASE WHEN pathname LIKE '%PULLS%' THEN 0 ELSE 1 END ASC",
	"CASE WHEN pathname LIKE '%EDIT%' THEN 1 ELSE 0 END ASC",
	"CASE WHEN pathname LIKE '%MIX%' THEN 1 ELSE 0 END ASC",
	"CASE WHEN pathname LIKE '%SESSION%' THEN 1 ELSE 0 END ASC",
	"duration DESC",
	"channels DESC",
	"sampleRate DESC",
	"bitDepth DESC",
	"BWDate ASC",
	"scannedDate ASC",
}

// presets is populated once at init and read-only afterwards.
var presets = func() *orderedmap.OrderedMap[string, Preset] {
	m := orderedmap.NewOrderedMap[string, Preset]()
	m.Set(PresetDefault, Preset{
		Name:  PresetDefault,
		Tags:  audioSuiteTags,
		Order: defaultOrder,
	})
	m.Set(PresetTJF, Preset{
		Name:  PresetTJF,
		Tags:  append(append([]string(nil), audioSuiteTags...), ".new.", ".aif.", ".mp3.", ".wav."),
		Order: tjfOrder,
	})
	return m
}()

// LookupPreset returns a copy of the named preset.
func LookupPreset(name string) (Preset, bool) {
	p, ok := presets.Get(name)
	if !ok {
		return Preset{}, false
	}
	return Preset{
		Name:  p.Name,
		Tags:  append([]string(nil), p.Tags...),
		Order: append([]string(nil), p.Order...),
	}, true
}

// PresetNames lists preset names in registration order.
func PresetNames() []string {
	return presets.Keys()
}
