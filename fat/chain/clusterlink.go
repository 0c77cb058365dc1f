package chain

// ClusterIO is the narrow contract a Link needs to read and write one FAT
// cluster. The fat package's in-memory FAT/device binding satisfies this;
// chain depends only on this interface so it never needs to import fat
// (which imports chain for file and directory bodies).
type ClusterIO interface {
	ReadCluster(index uint32) ([]byte, error)
	WriteCluster(index uint32, data []byte) error
	ClusterSize() int
}

// clusterLink is a Link backed by a single cluster.
type clusterLink struct {
	io    ClusterIO
	index uint32
}

// NewClusterLink wraps cluster index as a Link.
func NewClusterLink(io ClusterIO, index uint32) Link {
	return &clusterLink{io: io, index: index}
}

func (l *clusterLink) Read() ([]byte, error) {
	return l.io.ReadCluster(l.index)
}

// Write zero-pads buf to the cluster size rather than truncating: a
// cluster-backed link always writes a whole cluster.
func (l *clusterLink) Write(buf []byte) error {
	size := l.io.ClusterSize()
	if len(buf) < size {
		padded := make([]byte, size)
		copy(padded, buf)
		buf = padded
	}
	return l.io.WriteCluster(l.index, buf)
}

// Index returns the cluster number this link is backed by, giving the
// allocator a locality hint when it's the chain's final link.
func (l *clusterLink) Index() uint32 {
	return l.index
}
