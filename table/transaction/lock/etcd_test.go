package lock

import (
	"context"
	"testing"
	"time"

	"github.com/pingcap-incubator/tinytable/table/util/testutil"
	. "github.com/pingcap/check"
	"go.etcd.io/etcd/clientv3"
)

func TestEtcd(t *testing.T) {
	TestingT(t)
}

var _ = Suite(&testEtcdLockSuite{})

type testEtcdLockSuite struct {
	etcd *testutil.EmbeddedEtcd
}

func (s *testEtcdLockSuite) SetUpSuite(c *C) {
	etcd, err := testutil.StartEmbeddedEtcd()
	c.Assert(err, IsNil)
	s.etcd = etcd
}

func (s *testEtcdLockSuite) TearDownSuite(c *C) {
	s.etcd.Close()
}

func (s *testEtcdLockSuite) TestMutualExclusion(c *C) {
	a := NewEtcdProvider(s.etcd.Client, "/tinytable/locks", "trips", "writer-a", 5)
	b := NewEtcdProvider(s.etcd.Client, "/tinytable/locks", "trips", "writer-b", 5)
	defer a.Close()
	defer b.Close()

	c.Assert(a.Lock(context.Background()), IsNil)

	resp, err := s.etcd.Client.Get(context.Background(), "/tinytable/locks/trips/", clientv3.WithPrefix())
	c.Assert(err, IsNil)
	c.Assert(resp.Kvs, HasLen, 1)
	c.Assert(string(resp.Kvs[0].Value), Equals, "writer-a")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	c.Assert(b.Lock(ctx), Equals, context.DeadlineExceeded)

	c.Assert(a.Unlock(), IsNil)
	c.Assert(a.Unlock(), NotNil)
	c.Assert(b.Lock(context.Background()), IsNil)
	c.Assert(b.Unlock(), IsNil)
}

func (s *testEtcdLockSuite) TestCloseReleases(c *C) {
	a := NewEtcdProvider(s.etcd.Client, "/tinytable/locks", "close", "writer-a", 5)
	b := NewEtcdProvider(s.etcd.Client, "/tinytable/locks", "close", "writer-b", 5)
	defer b.Close()

	c.Assert(a.Lock(context.Background()), IsNil)
	c.Assert(a.Close(), IsNil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.Assert(b.Lock(ctx), IsNil)
	c.Assert(b.Unlock(), IsNil)
}
