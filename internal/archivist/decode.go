package archivist

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

func decodeAny(buf []byte) (image.Image, string, error) {
	return image.Decode(bytes.NewReader(buf))
}
