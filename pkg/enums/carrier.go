package enums

import (
	"fmt"
	"net/url"
	"strings"
)

// Carrier is the closed set of shipping carriers the Channel accepts.
type Carrier string

const (
	CarrierUPS       Carrier = "UPS"
	CarrierUSPS      Carrier = "USPS"
	CarrierFedEx     Carrier = "FedEx"
	CarrierDHL       Carrier = "DHL"
	CarrierOnTrac    Carrier = "OnTrac"
	CarrierLaserShip Carrier = "LaserShip"
	CarrierOther     Carrier = "Other"
)

var validCarriers = []Carrier{
	CarrierUPS,
	CarrierUSPS,
	CarrierFedEx,
	CarrierDHL,
	CarrierOnTrac,
	CarrierLaserShip,
	CarrierOther,
}

var carrierAliases = map[string]Carrier{
	"ups":                       CarrierUPS,
	"unitedparcelservice":       CarrierUPS,
	"upsground":                 CarrierUPS,
	"usps":                      CarrierUSPS,
	"unitedstatespostalservice": CarrierUSPS,
	"postalservice":             CarrierUSPS,
	"fedex":                     CarrierFedEx,
	"federalexpress":            CarrierFedEx,
	"fedexground":               CarrierFedEx,
	"dhl":                       CarrierDHL,
	"dhlexpress":                CarrierDHL,
	"dhlecommerce":              CarrierDHL,
	"ontrac":                    CarrierOnTrac,
	"lasership":                 CarrierLaserShip,
}

var carrierTrackingURLs = map[Carrier]string{
	CarrierUPS:       "https://www.ups.com/track?tracknum=%s",
	CarrierUSPS:      "https://tools.usps.com/go/TrackConfirmAction?tLabels=%s",
	CarrierFedEx:     "https://www.fedex.com/fedextrack/?trknbr=%s",
	CarrierDHL:       "https://www.dhl.com/us-en/home/tracking.html?tracking-id=%s",
	CarrierOnTrac:    "https://www.ontrac.com/tracking/?number=%s",
	CarrierLaserShip: "https://www.lasership.com/track/%s",
}

// String implements fmt.Stringer.
func (c Carrier) String() string {
	return string(c)
}

// IsValid reports whether the value is a known Carrier.
func (c Carrier) IsValid() bool {
	for _, candidate := range validCarriers {
		if candidate == c {
			return true
		}
	}
	return false
}

// MapCarrier maps free-form vendor input onto a Channel carrier. The mapping is
// total: anything unrecognised becomes CarrierOther.
func MapCarrier(raw string) Carrier {
	key := normalizeCarrier(raw)
	if key == "" {
		return CarrierOther
	}
	if carrier, ok := carrierAliases[key]; ok {
		return carrier
	}
	return CarrierOther
}

// ParseCarrier converts an exact carrier name into a Carrier.
func ParseCarrier(value string) (Carrier, error) {
	for _, candidate := range validCarriers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid carrier %q", value)
}

// TrackingURL builds the public tracking link for a shipment. Other has no
// template and yields an empty string.
func (c Carrier) TrackingURL(trackingNumber string) string {
	tmpl, ok := carrierTrackingURLs[c]
	trackingNumber = strings.TrimSpace(trackingNumber)
	if !ok || trackingNumber == "" {
		return ""
	}
	return fmt.Sprintf(tmpl, url.QueryEscape(trackingNumber))
}

func normalizeCarrier(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
