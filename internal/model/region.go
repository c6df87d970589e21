package model

import (
	"fmt"
	"strings"
)

// Region is a Zoho Books data region the exporter can target.
type Region string

// Supported regions.
const (
	RegionIN Region = "IN"
	RegionUS Region = "US"
	RegionEU Region = "EU"
	RegionUK Region = "UK"
)

// Regions lists every supported region in display order.
func Regions() []Region {
	return []Region{RegionIN, RegionUS, RegionEU, RegionUK}
}

// ParseRegion accepts a region key in any case.
func ParseRegion(s string) (Region, error) {
	r := Region(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Regions() {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown region %q (want one of IN, US, EU, UK)", s)
}

// Lower returns the region key in lower case, as used in config keys.
func (r Region) Lower() string { return strings.ToLower(string(r)) }
