package upload

import "github.com/strandapp/strand-service/internal/media"

// Path selects which uploader carries a file.
type Path int

const (
	// PathProxied sends the bytes through the application tier, which
	// performs the storage write itself.
	PathProxied Path = iota
	// PathDirect writes bytes straight to object storage via a presigned
	// URL, then persists metadata in a separate call.
	PathDirect
)

func (p Path) String() string {
	if p == PathDirect {
		return "direct"
	}
	return "proxied"
}

// Router decides, per file, which upload path to take. The decision is
// file-local: files in one submission may take different paths concurrently.
type Router struct {
	proxyThreshold int64
}

func NewRouter(proxyThresholdBytes int64) *Router {
	return &Router{proxyThreshold: proxyThresholdBytes}
}

// Route returns Direct for videos and for anything too big to pass through
// the application tier safely. The direct path namespaces the storage write
// under the owner, so without an owner identity it falls back to Proxied
// regardless of size.
func (r *Router) Route(cl media.Classification, byteSize int64, ownerID string) Path {
	if ownerID == "" {
		return PathProxied
	}
	if cl.Kind == media.KindVideo || byteSize > r.proxyThreshold {
		return PathDirect
	}
	return PathProxied
}
