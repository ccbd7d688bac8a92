package port

// FileWalker lists ingestible files under a root directory.
type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

type FileInfo struct {
	Path    string
	RelPath string
	ModTime int64
	Size    int64
}

type FileReader interface {
	ReadFile(path string) ([]byte, error)
}
