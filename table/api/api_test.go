package api

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/pingcap/check"
	"github.com/pingcap-incubator/tinytable/table/metadata"
	"github.com/pingcap-incubator/tinytable/table/storage"
	"github.com/pingcap-incubator/tinytable/table/timeline"
	"github.com/pingcap-incubator/tinytable/table/transaction"
)

func TestAPI(t *testing.T) {
	TestingT(t)
}

var _ = Suite(&testAPISuite{})

type testAPISuite struct {
	at     *timeline.ActiveTimeline
	svr    *httptest.Server
	urlPre string
}

func ts(n int) string {
	return fmt.Sprintf("20240101000000%03d", n)
}

func commitPayload(c *C, fileIDs ...string) []byte {
	m := metadata.NewCommitMetadata(metadata.Upsert)
	for _, id := range fileIDs {
		m.AddWriteStat("p1", metadata.WriteStat{FileID: id, NumWrites: 1})
	}
	data, err := metadata.Encode(m)
	c.Assert(err, IsNil)
	return data
}

func (s *testAPISuite) SetUpTest(c *C) {
	clock := 100
	at, err := timeline.OpenActiveTimeline(storage.NewMemStorage(), "trips", timeline.WithClock(func() string {
		clock++
		return ts(clock)
	}))
	c.Assert(err, IsNil)
	s.at = at

	// ts(1) is still writing f1. ts(2) finished f1 meanwhile, ts(3) finished f2.
	writing, err := at.CreateRequested(timeline.Commit, ts(1), nil)
	c.Assert(err, IsNil)
	_, err = at.TransitionInflight(writing, commitPayload(c, "f1"))
	c.Assert(err, IsNil)
	for i, fileID := range []string{"f1", "f2"} {
		inst, err := at.CreateRequested(timeline.Commit, ts(i+2), nil)
		c.Assert(err, IsNil)
		inst, err = at.TransitionInflight(inst, nil)
		c.Assert(err, IsNil)
		_, err = at.TransitionComplete(inst, commitPayload(c, fileID))
		c.Assert(err, IsNil)
	}

	strategy, err := transaction.NewConflictResolutionStrategy("simple")
	c.Assert(err, IsNil)
	s.svr = httptest.NewServer(NewHandler(at, strategy))
	s.urlPre = s.svr.URL + APIPrefix + "/api/v1"
}

func (s *testAPISuite) TearDownTest(c *C) {
	s.svr.Close()
}

func readJSON(c *C, url string, status int, v interface{}) {
	resp, err := http.Get(url)
	c.Assert(err, IsNil)
	defer resp.Body.Close()
	c.Assert(resp.StatusCode, Equals, status)
	if v == nil {
		return
	}
	body, err := ioutil.ReadAll(resp.Body)
	c.Assert(err, IsNil)
	c.Assert(json.Unmarshal(body, v), IsNil)
}

func (s *testAPISuite) TestTimeline(c *C) {
	var all []InstantInfo
	readJSON(c, s.urlPre+"/timeline", http.StatusOK, &all)
	c.Assert(all, HasLen, 3)
	c.Assert(all[0], DeepEquals, InstantInfo{Timestamp: ts(1), Action: "COMMIT", State: "INFLIGHT"})
	c.Assert(all[1].State, Equals, "COMPLETED")
	c.Assert(all[1].CompletionTime, Equals, ts(101))

	var completed []InstantInfo
	readJSON(c, s.urlPre+"/timeline?state=completed", http.StatusOK, &completed)
	c.Assert(completed, HasLen, 2)

	var pending []InstantInfo
	readJSON(c, s.urlPre+"/timeline?state=pending", http.StatusOK, &pending)
	c.Assert(pending, HasLen, 1)
	c.Assert(pending[0].Timestamp, Equals, ts(1))

	readJSON(c, s.urlPre+"/timeline?state=archived", http.StatusBadRequest, nil)
}

func (s *testAPISuite) TestPending(c *C) {
	var ids []string
	readJSON(c, s.urlPre+"/timeline/pending", http.StatusOK, &ids)
	c.Assert(ids, DeepEquals, []string{timeline.ID{Timestamp: ts(1), Action: timeline.Commit}.String()})
}

func (s *testAPISuite) TestGetInstant(c *C) {
	var info InstantInfo
	readJSON(c, s.urlPre+"/instants/"+ts(3)+"/COMMIT", http.StatusOK, &info)
	c.Assert(info.State, Equals, "COMPLETED")
	c.Assert(info.CompletionTime, Equals, ts(102))

	readJSON(c, s.urlPre+"/instants/"+ts(9)+"/COMMIT", http.StatusNotFound, nil)
	readJSON(c, s.urlPre+"/instants/"+ts(3)+"/UPSERT", http.StatusBadRequest, nil)
}

func (s *testAPISuite) TestConflicts(c *C) {
	var report ConflictReport
	readJSON(c, s.urlPre+"/instants/"+ts(1)+"/COMMIT/conflicts", http.StatusOK, &report)
	c.Assert(report.Instant.Timestamp, Equals, ts(1))
	c.Assert(report.Candidates, HasLen, 2)

	overlapping := report.Candidates[0]
	c.Assert(overlapping.Instant.Timestamp, Equals, ts(2))
	c.Assert(overlapping.FileGroups, DeepEquals, []string{"p1/f1"})
	c.Assert(overlapping.Conflict, Not(Equals), "")

	disjoint := report.Candidates[1]
	c.Assert(disjoint.Instant.Timestamp, Equals, ts(3))
	c.Assert(disjoint.FileGroups, HasLen, 0)
	c.Assert(disjoint.Conflict, Equals, "")

	// The newest commit has nothing after it.
	readJSON(c, s.urlPre+"/instants/"+ts(3)+"/COMMIT/conflicts", http.StatusOK, &report)
	c.Assert(report.Candidates, HasLen, 0)
}

func (s *testAPISuite) TestMetrics(c *C) {
	resp, err := http.Get(s.svr.URL + APIPrefix + "/metrics")
	c.Assert(err, IsNil)
	defer resp.Body.Close()
	c.Assert(resp.StatusCode, Equals, http.StatusOK)
}
