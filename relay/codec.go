package relay

import (
	"encoding/base64"

	"github.com/echolock/echolock/internal/common"
)

// ContentVersion is the version byte in the wire content layout from
// spec.md §6. Readers reject any other value.
const ContentVersion byte = 2

// EncodeShareContent packs a wrapped share's nonce/ciphertext/mac into
// the base64 content payload used by kind-30079 and kind-30080
// events: [version:1 | nonce:32 | ciphertext:variable | mac:32].
func EncodeShareContent(nonce, ciphertext, mac []byte) string {
	buf := make([]byte, 0, 1+len(nonce)+len(ciphertext)+len(mac))
	buf = append(buf, ContentVersion)
	buf = append(buf, nonce...)
	buf = append(buf, ciphertext...)
	buf = append(buf, mac...)
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeShareContent reverses EncodeShareContent. It rejects any
// version byte other than ContentVersion.
func DecodeShareContent(content string) (nonce, ciphertext, mac []byte, err error) {
	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, nil, nil, common.NewError(common.KindIo, "decoding base64 share content", err)
	}
	const nonceLen, macLen = 32, 32
	if len(raw) < 1+nonceLen+macLen {
		return nil, nil, nil, common.NewError(common.KindIntegrityFailure, "share content too short", nil)
	}
	if raw[0] != ContentVersion {
		return nil, nil, nil, common.NewError(common.KindIntegrityFailure, "unsupported share content version", nil)
	}
	nonce = raw[1 : 1+nonceLen]
	mac = raw[len(raw)-macLen:]
	ciphertext = raw[1+nonceLen : len(raw)-macLen]
	return nonce, ciphertext, mac, nil
}
