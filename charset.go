package alipayauth

import (
	"golang.org/x/text/encoding/simplifiedchinese"
)

// gatewayCharset is the charset negotiated with the gateway on every call.
const gatewayCharset = "gbk"

// decodeGBK converts a GBK-encoded gateway body to UTF-8. Invalid byte
// sequences become U+FFFD; the error return only covers transformer failures.
func decodeGBK(body []byte) ([]byte, error) {
	out, err := simplifiedchinese.GBK.NewDecoder().Bytes(body)
	if err != nil {
		return nil, newAuthError(ErrKindResponseFormat, "", "decode GBK response: "+err.Error(), err)
	}
	return out, nil
}
