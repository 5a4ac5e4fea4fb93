package domain

// UploadFile is an in-memory uploaded file.
type UploadFile struct {
	Filename    string
	ContentType string
	Data        []byte
}
