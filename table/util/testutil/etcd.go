package testutil

import (
	"fmt"
	"io/ioutil"
	"net"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/pingcap/errors"
	"go.etcd.io/etcd/clientv3"
	"go.etcd.io/etcd/embed"
)

var (
	allocMu   sync.Mutex
	allocated = make(map[string]struct{})
)

// AllocURL returns a local URL whose port was free a moment ago and has not been handed out before by this process.
func AllocURL() (string, error) {
	for i := 0; i < 10; i++ {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return "", errors.WithStack(err)
		}
		addr := fmt.Sprintf("http://%s", l.Addr())
		if err := l.Close(); err != nil {
			return "", errors.WithStack(err)
		}
		allocMu.Lock()
		_, taken := allocated[addr]
		allocated[addr] = struct{}{}
		allocMu.Unlock()
		if !taken {
			return addr, nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return "", errors.New("failed to alloc test URL")
}

// EmbeddedEtcd is a single member etcd cluster running inside the test process.
type EmbeddedEtcd struct {
	Etcd   *embed.Etcd
	Client *clientv3.Client
	dir    string
}

// StartEmbeddedEtcd starts a single member etcd in a temporary directory and connects a client to it.
func StartEmbeddedEtcd() (*EmbeddedEtcd, error) {
	cfg := embed.NewConfig()
	cfg.Name = "test_etcd"
	dir, err := ioutil.TempDir("", "test_etcd")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	cfg.Dir = dir
	cfg.WalDir = ""
	cfg.Logger = "zap"
	cfg.LogOutputs = []string{"stderr"}

	peer, err := AllocURL()
	if err != nil {
		return nil, err
	}
	client, err := AllocURL()
	if err != nil {
		return nil, err
	}
	pu, _ := url.Parse(peer)
	cfg.LPUrls = []url.URL{*pu}
	cfg.APUrls = cfg.LPUrls
	cu, _ := url.Parse(client)
	cfg.LCUrls = []url.URL{*cu}
	cfg.ACUrls = cfg.LCUrls

	cfg.StrictReconfigCheck = false
	cfg.InitialCluster = fmt.Sprintf("%s=%s", cfg.Name, &cfg.LPUrls[0])
	cfg.ClusterState = embed.ClusterStateFlagNew

	etcd, err := embed.StartEtcd(cfg)
	if err != nil {
		os.RemoveAll(dir)
		return nil, errors.WithStack(err)
	}
	select {
	case <-etcd.Server.ReadyNotify():
	case <-time.After(30 * time.Second):
		etcd.Close()
		os.RemoveAll(dir)
		return nil, errors.New("embedded etcd took too long to start")
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{cfg.LCUrls[0].String()},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		etcd.Close()
		os.RemoveAll(dir)
		return nil, errors.WithStack(err)
	}
	return &EmbeddedEtcd{Etcd: etcd, Client: cli, dir: dir}, nil
}

// Endpoint returns the client URL of the embedded member.
func (e *EmbeddedEtcd) Endpoint() string {
	return e.Etcd.Config().LCUrls[0].String()
}

// Close stops the member and removes its data directory.
func (e *EmbeddedEtcd) Close() {
	e.Client.Close()
	e.Etcd.Close()
	os.RemoveAll(e.dir)
}
