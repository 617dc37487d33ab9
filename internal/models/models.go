package models

import (
	"path"
	"strings"
	"time"
)

// FileType is the content-type tag stored with an object.
type FileType string

const (
	FileTypeUnknown FileType = "application/octet-stream"
	FileTypePDF     FileType = "application/pdf"
	FileTypeJPEG    FileType = "image/jpeg"
	FileTypeCSV     FileType = "application/csv"
	FileTypeJSON    FileType = "application/json"
)

func (t FileType) String() string { return string(t) }

var fileTypesByExt = map[string]FileType{
	"PDF":  FileTypePDF,
	"JPG":  FileTypeJPEG,
	"JPEG": FileTypeJPEG,
	"CSV":  FileTypeCSV,
	"JSON": FileTypeJSON,
}

// FileTypeFromName maps an object or file name to its FileType by extension.
// Unrecognised extensions map to FileTypeUnknown.
func FileTypeFromName(name string) FileType {
	ext := strings.ToUpper(strings.TrimPrefix(path.Ext(name), "."))
	if t, ok := fileTypesByExt[ext]; ok {
		return t
	}
	return FileTypeUnknown
}

// ObjectInfo is one entry of a bucket listing.
type ObjectInfo struct {
	BucketName   string     `json:"bucket_name"`
	ObjectName   string     `json:"object_name"`
	LastModified *time.Time `json:"last_modified"`
	ContentType  string     `json:"content_type"`
	Size         int64      `json:"size"`
}

// PageObjectName is the object name of a page image of doc in the images bucket.
func PageObjectName(doc, pageFile string) string {
	return doc + "/" + pageFile
}
