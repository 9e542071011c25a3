package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ruvnet/daa-sub007/ids"
	"github.com/ruvnet/daa-sub007/peer"
)

func mkPeer(b byte) ids.PeerId {
	var p ids.PeerId
	p[0] = b
	return p
}

func managerWithPeers(n int) *peer.Manager {
	m := peer.NewManager(nil)
	for i := 0; i < n; i++ {
		m.AddPeer(peer.Info{ID: mkPeer(byte(i + 1))})
	}
	return m
}

func TestRouteDirect(t *testing.T) {
	r := NewRouter(managerWithPeers(3))
	dst := mkPeer(2)
	path, err := r.Route("m1", mkPeer(1), Strategy{Kind: Direct, Dst: dst})
	require.NoError(t, err)
	require.Equal(t, []ids.PeerId{dst}, path)
}

func TestRouteDirectRejectsEmptyDst(t *testing.T) {
	r := NewRouter(managerWithPeers(3))
	_, err := r.Route("m1", mkPeer(1), Strategy{Kind: Direct})
	require.Error(t, err)
}

func TestRouteFloodExcludesSource(t *testing.T) {
	r := NewRouter(managerWithPeers(4))
	src := mkPeer(1)
	path, err := r.Route("m1", src, Strategy{Kind: Flood})
	require.NoError(t, err)
	require.Len(t, path, 3)
	for _, id := range path {
		require.NotEqual(t, src, id)
	}
}

func TestRouteAnonymousInsufficientPeers(t *testing.T) {
	r := NewRouter(managerWithPeers(2))
	_, err := r.Route("m1", mkPeer(1), Strategy{Kind: Anonymous, Hops: 5})
	require.Error(t, err)
}

func TestRouteAnonymousDeterministicByMessageID(t *testing.T) {
	r := NewRouter(managerWithPeers(8))
	path1, err := r.Route("stable-id", mkPeer(1), Strategy{Kind: Anonymous, Hops: 4})
	require.NoError(t, err)
	path2, err := r.Route("stable-id", mkPeer(1), Strategy{Kind: Anonymous, Hops: 4})
	require.NoError(t, err)
	require.Equal(t, path1, path2)
	require.Len(t, path1, 4)

	seen := make(map[ids.PeerId]struct{})
	for _, id := range path1 {
		seen[id] = struct{}{}
	}
	require.Len(t, seen, 4)
}

func TestRouteAnonymousDiffersByMessageID(t *testing.T) {
	r := NewRouter(managerWithPeers(8))
	path1, err := r.Route("id-a", mkPeer(1), Strategy{Kind: Anonymous, Hops: 4})
	require.NoError(t, err)
	path2, err := r.Route("id-b", mkPeer(1), Strategy{Kind: Anonymous, Hops: 4})
	require.NoError(t, err)
	require.NotEqual(t, path1, path2)
}
