package audio

// Asset is a downloaded file waiting in staging, already hashed.
type Asset struct {
	Path string
	Size int64
	Hash string
}
