// Package root selects the root manifest decoder of a product.
package root

import (
	"bytes"

	"github.com/brecky/casc/common"
	"github.com/brecky/casc/root/diablo3"
	"github.com/brecky/casc/root/overwatch"
	"github.com/brecky/casc/root/warcraft3"
	"github.com/brecky/casc/root/wow"
)

// Decoder turns a decoded root manifest into root entries.
type Decoder func(root []byte) (common.RootManifest, error)

var productDecoders = map[string]Decoder{
	"WoW":        wow.NewRoot,
	"War3":       warcraft3.NewRoot,
	"StarCraft1": warcraft3.NewRoot,
	"Prometheus": overwatch.NewRoot,
}

// DecoderFor returns the decoder of the build config's build-product.
// Unknown products are recognised from the manifest content instead.
func DecoderFor(product string) Decoder {
	return DecoderWith(product, nil)
}

// DecoderWith is DecoderFor for storages able to read the extra manifests
// some roots reference. fetch may be nil.
func DecoderWith(product string, fetch common.ContentFetcher) Decoder {
	if product == "Diablo3" {
		return func(root []byte) (common.RootManifest, error) {
			return diablo3.NewRoot(root, fetch)
		}
	}
	if d, ok := productDecoders[product]; ok {
		return d
	}
	return sniffWith(fetch)
}

// Sniff decodes root with the decoder matching its layout: "TSFM" and
// binary data are WoW roots, csv rows starting with '#' are Overwatch roots
// and other text is a "name|ckey" root. Diablo III roots are recognised by
// their signature.
func Sniff(root []byte) (common.RootManifest, error) {
	return sniffWith(nil)(root)
}

var diablo3Signature = []byte{0xC4, 0xD0, 0x07, 0x80}

func sniffWith(fetch common.ContentFetcher) Decoder {
	return func(root []byte) (common.RootManifest, error) {
		if bytes.HasPrefix(root, diablo3Signature) {
			return diablo3.NewRoot(root, fetch)
		}
		return sniff(root)
	}
}

func sniff(root []byte) (common.RootManifest, error) {
	switch {
	case bytes.HasPrefix(root, []byte("TSFM")):
		return wow.NewRoot(root)
	case !isText(root):
		return wow.NewRoot(root)
	case bytes.HasPrefix(root, []byte("#")):
		return overwatch.NewRoot(root)
	default:
		return warcraft3.NewRoot(root)
	}
}

func isText(b []byte) bool {
	if len(b) > 512 {
		b = b[:512]
	}
	for _, c := range b {
		if c < 0x09 || (c > 0x0d && c < 0x20) || c == 0x7f {
			return false
		}
	}
	return len(b) > 0
}
