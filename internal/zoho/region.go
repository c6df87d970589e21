package zoho

import (
	"fmt"
	"net/url"
	"time"

	"github.com/Veraticus/trial-balance-export/internal/common"
	"github.com/Veraticus/trial-balance-export/internal/model"
)

// Hosts are the base URLs serving one region.
type Hosts struct {
	API        string
	Accounts   string
	DataCenter string
}

var regionHosts = map[model.Region]Hosts{
	model.RegionIN: {API: "https://www.zohoapis.in", Accounts: "https://accounts.zoho.in", DataCenter: "in"},
	model.RegionUS: {API: "https://www.zohoapis.com", Accounts: "https://accounts.zoho.com", DataCenter: "com"},
	model.RegionEU: {API: "https://www.zohoapis.eu", Accounts: "https://accounts.zoho.eu", DataCenter: "eu"},
	model.RegionUK: {API: "https://www.zohoapis.eu", Accounts: "https://accounts.zoho.eu", DataCenter: "eu"},
}

// DefaultHosts returns the public hosts for region. UK is served from the EU data center.
func DefaultHosts(region model.Region) (Hosts, error) {
	h, ok := regionHosts[region]
	if !ok {
		return Hosts{}, fmt.Errorf("%w: %q", common.ErrInvalidRegion, region)
	}
	return h, nil
}

// NewConnection describes a freshly authorized region for storage.
// Hosts are stored without their scheme.
func (h Hosts) NewConnection(userEmail string, region model.Region, sealedToken string, now time.Time) model.Connection {
	return model.Connection{
		UserEmail:          userEmail,
		Region:             region,
		DataCenter:         h.DataCenter,
		AccountsHost:       hostOnly(h.Accounts),
		APIHost:            hostOnly(h.API),
		RefreshTokenSealed: sealedToken,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func hostOnly(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
