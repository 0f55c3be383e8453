package detailsmatter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePrompt(t *testing.T) {
	assert.ErrorIs(t, ValidatePrompt(""), ErrEmptyPrompt)
	assert.NoError(t, ValidatePrompt("a lighthouse"))
}

func TestValidateImage(t *testing.T) {
	tests := []struct {
		name    string
		img     *Image
		wantErr error
	}{
		{name: "nil", img: nil, wantErr: ErrEmptyImageData},
		{name: "empty data", img: &Image{MIMEType: "image/png"}, wantErr: ErrEmptyImageData},
		{name: "missing mime", img: &Image{Data: fakePNG}, wantErr: ErrInvalidMIMEType},
		{name: "unsupported mime", img: &Image{Data: fakePNG, MIMEType: "image/tiff"}, wantErr: ErrInvalidMIMEType},
		{name: "too large", img: &Image{Data: bytes.Repeat([]byte{1}, MaxImageSize+1), MIMEType: "image/png"}, wantErr: ErrImageTooLarge},
		{name: "not an image", img: &Image{Data: []byte("this is not an image at all"), MIMEType: "image/png"}, wantErr: ErrUnrecognizedImage},
		{name: "valid", img: &Image{Data: fakePNG, MIMEType: "image/png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateImage(tt.img)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateRequest_ChecksConditioning(t *testing.T) {
	err := ValidateRequest(&GenerateRequest{Prompt: "x", Conditioning: &Image{}})
	assert.ErrorIs(t, err, ErrEmptyImageData)

	assert.NoError(t, ValidateRequest(&GenerateRequest{Prompt: "x"}))
}

func TestSniffMIMEType(t *testing.T) {
	assert.Equal(t, "image/png", SniffMIMEType(fakePNG))
	assert.Equal(t, "image/jpeg", SniffMIMEType([]byte("\xff\xd8\xff\xe0\x00\x10JFIF")))
	assert.Empty(t, SniffMIMEType([]byte("not an image")))
	assert.Empty(t, SniffMIMEType([]byte{105, 183, 29}))
}
