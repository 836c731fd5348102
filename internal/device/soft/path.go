package soft

import (
	"strconv"
	"strings"

	"github.com/tyler-smith/go-bip32"

	scouterr "github.com/mrz1836/scout/pkg/errors"
)

// ParsePath parses a BIP32 path such as "m/84'/0'/3'" into child indexes.
// Hardened levels may be marked with ' or h.
func ParsePath(path string) ([]uint32, error) {
	invalid := scouterr.WithDetails(scouterr.ErrInvalidPath, map[string]string{"path": path})

	parts := strings.Split(strings.TrimSpace(path), "/")
	if len(parts) < 2 || parts[0] != "m" {
		return nil, invalid
	}

	out := make([]uint32, 0, len(parts)-1)
	for _, p := range parts[1:] {
		hardened := false
		if strings.HasSuffix(p, "'") || strings.HasSuffix(p, "h") || strings.HasSuffix(p, "H") {
			hardened = true
			p = p[:len(p)-1]
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil || uint32(n) >= bip32.FirstHardenedChild {
			return nil, invalid
		}
		idx := uint32(n)
		if hardened {
			idx += bip32.FirstHardenedChild
		}
		out = append(out, idx)
	}
	return out, nil
}

// FormatPath renders child indexes back into "m/..." notation.
func FormatPath(indexes []uint32) string {
	var b strings.Builder
	b.WriteString("m")
	for _, idx := range indexes {
		b.WriteString("/")
		if idx >= bip32.FirstHardenedChild {
			b.WriteString(strconv.FormatUint(uint64(idx-bip32.FirstHardenedChild), 10))
			b.WriteString("'")
			continue
		}
		b.WriteString(strconv.FormatUint(uint64(idx), 10))
	}
	return b.String()
}
