package avatar

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Size 归一化后头像的边长（像素）。
const Size = 250

var (
	// ErrBadExtension 文件扩展名不是 jpg/jpeg/png。
	ErrBadExtension = errors.New("avatar must be a jpg, jpeg or png file")
	// ErrTooLarge 文件超过大小上限。
	ErrTooLarge = errors.New("avatar file too large")
)

// ValidateUpload 在解码之前检查上传文件名与大小。
//
// 扩展名与大小都不合法时优先报扩展名错误（与上传过滤器一致）。
func ValidateUpload(filename string, size int64, maxBytes int64) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png":
	default:
		return ErrBadExtension
	}
	if maxBytes > 0 && size > maxBytes {
		return ErrTooLarge
	}
	return nil
}

// Normalize 将上传的图片解码并归一化为 Size x Size 的 PNG。
//
// 裁剪方式为居中填充，长宽比不被拉伸。
func Normalize(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode avatar: %w", err)
	}

	normalized := imaging.Fill(img, Size, Size, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, normalized, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode avatar: %w", err)
	}
	return buf.Bytes(), nil
}
