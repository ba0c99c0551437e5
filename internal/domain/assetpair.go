package domain

import (
	"fmt"
	"strings"
)

// AssetPair is an ordered (base, quote) pair of asset identifiers. It encodes
// as the text "BASE/QUOTE".
type AssetPair struct {
	Base  string
	Quote string
}

// NewAssetPair builds a pair, upper-casing both assets.
func NewAssetPair(base, quote string) AssetPair {
	return AssetPair{
		Base:  strings.ToUpper(strings.TrimSpace(base)),
		Quote: strings.ToUpper(strings.TrimSpace(quote)),
	}
}

// ParseAssetPair parses "BASE/QUOTE", "BASE-QUOTE" or "BASE_QUOTE".
func ParseAssetPair(s string) (AssetPair, error) {
	for _, sep := range []string{"/", "-", "_"} {
		base, quote, ok := strings.Cut(s, sep)
		if !ok {
			continue
		}
		p := NewAssetPair(base, quote)
		if !p.Valid() {
			break
		}
		return p, nil
	}
	return AssetPair{}, fmt.Errorf("%w: asset pair %q", ErrInvalidArgument, s)
}

// Valid reports whether both sides are set and differ.
func (p AssetPair) Valid() bool {
	return p.Base != "" && p.Quote != "" && p.Base != p.Quote
}

func (p AssetPair) String() string {
	return p.Base + "/" + p.Quote
}

// Reverse returns QUOTE/BASE.
func (p AssetPair) Reverse() AssetPair {
	return AssetPair{Base: p.Quote, Quote: p.Base}
}

// IsReversed reports whether other is p with its sides swapped.
func (p AssetPair) IsReversed(other AssetPair) bool {
	return p.Base == other.Quote && p.Quote == other.Base
}

func (p AssetPair) IsEqualOrReversed(other AssetPair) bool {
	return p == other || p.IsReversed(other)
}

// Contains reports whether asset is either side of the pair.
func (p AssetPair) Contains(asset string) bool {
	return p.Base == asset || p.Quote == asset
}

// Other returns the side that is not asset, or "" when asset is not in the pair.
func (p AssetPair) Other(asset string) string {
	switch asset {
	case p.Base:
		return p.Quote
	case p.Quote:
		return p.Base
	}
	return ""
}

// MarshalText encodes the pair as "BASE/QUOTE" so it can key JSON maps.
func (p AssetPair) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *AssetPair) UnmarshalText(b []byte) error {
	parsed, err := ParseAssetPair(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
