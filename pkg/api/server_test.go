package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonforge/cutplane/pkg/collab"
	"github.com/halcyonforge/cutplane/pkg/editor"
)

type stubCrops struct {
	calls int
}

func (s *stubCrops) GenerateCrops(ctx context.Context, splitID string, sections []collab.CropRequest, force bool) ([]collab.CropAsset, error) {
	s.calls++
	assets := make([]collab.CropAsset, len(sections))
	for i, req := range sections {
		assets[i] = collab.CropAsset{
			StorageKey: fmt.Sprintf("crops/%s.png", req.ID),
			Meta:       collab.AssetMeta{SectionID: req.ID, Width: 800, Height: 400},
			Order:      i,
		}
	}
	return assets, nil
}

type stubSplits struct {
	splits map[string]collab.Split
}

func (s *stubSplits) GetSplit(ctx context.Context, id string) (collab.Split, error) {
	split, ok := s.splits[id]
	if !ok {
		return collab.Split{}, fmt.Errorf("split %s not found", id)
	}
	return split, nil
}

func (s *stubSplits) FindSplitForUpload(ctx context.Context, uploadID string) (collab.Split, error) {
	for _, split := range s.splits {
		if split.UploadID == uploadID {
			return split, nil
		}
	}
	return collab.Split{}, fmt.Errorf("no split for upload %s", uploadID)
}

type stubDetector struct {
	sections []collab.Section
}

func (d *stubDetector) DetectSections(ctx context.Context, imageRef string) ([]collab.Section, error) {
	if len(d.sections) == 0 {
		return nil, fmt.Errorf("nothing detected in %s", imageRef)
	}
	return d.sections, nil
}

type stubSigner struct{}

func (stubSigner) SignURL(ctx context.Context, key string, ttl time.Duration) (collab.SignedURL, error) {
	return collab.SignedURL{
		URL: "https://cdn.test/" + key,
		Exp: time.Now().Add(ttl).UnixMilli(),
	}, nil
}

func testSections() []collab.Section {
	return []collab.Section{
		{ID: "s1", Index: 0, Type: collab.TypeHeader, Bounds: collab.Rect{X: 0, Y: 0, Width: 100, Height: 40}},
		{ID: "s2", Index: 1, Type: collab.TypeContent, Bounds: collab.Rect{X: 0, Y: 40, Width: 100, Height: 60}},
	}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	splits := &stubSplits{splits: map[string]collab.Split{
		"split-1": {ID: "split-1", UploadID: "upload-1", Sections: testSections()},
	}}
	gallery := editor.NewSynchronizer(stubSigner{}, nil, time.Minute, time.Second)
	pipeline := editor.NewPipeline(&stubCrops{}, splits, gallery)

	s := NewServer(Options{
		Pipeline: pipeline,
		Detector: &stubDetector{sections: []collab.Section{
			{ID: "d1", Index: 0, Type: collab.TypeHero, Bounds: collab.Rect{X: 0, Y: 0, Width: 100, Height: 70}},
			{ID: "d2", Index: 1, Type: collab.TypeFooter, Bounds: collab.Rect{X: 0, Y: 70, Width: 100, Height: 30}},
		}},
		DefaultContainerWidth: 800,
		DefaultMaxHeight:      1600,
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeSnapshot(t *testing.T, resp *http.Response) editor.Snapshot {
	t.Helper()
	defer resp.Body.Close()
	var snap editor.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	return snap
}

func createSession(t *testing.T, ts *httptest.Server) editor.Snapshot {
	t.Helper()
	resp := postJSON(t, ts.URL+"/sessions", map[string]interface{}{
		"split_id":       "split-1",
		"natural_width":  1200,
		"natural_height": 2400,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeSnapshot(t, resp)
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "running", body["status"])
}

func TestCreateSession(t *testing.T) {
	_, ts := newTestServer(t)

	t.Run("FromSplitID", func(t *testing.T) {
		snap := createSession(t, ts)
		assert.NotEmpty(t, snap.ID)
		assert.Equal(t, "split-1", snap.SplitID)
		assert.Len(t, snap.Sections, 2)
		assert.Equal(t, 800.0, snap.Geometry.DisplayWidth)
		assert.Equal(t, 1600.0, snap.Geometry.DisplayHeight)
		assert.NotEmpty(t, snap.CutLines, "cut lines derived on load")
	})

	t.Run("FromUploadID", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/sessions", map[string]interface{}{
			"upload_id":      "upload-1",
			"natural_width":  1200,
			"natural_height": 2400,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		snap := decodeSnapshot(t, resp)
		assert.Equal(t, "split-1", snap.SplitID)
	})

	t.Run("UnknownSplit", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/sessions", map[string]interface{}{
			"split_id":       "nope",
			"natural_width":  1200,
			"natural_height": 2400,
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("MissingNaturalSize", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/sessions", map[string]interface{}{
			"split_id": "split-1",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})
}

func TestSessionLifecycle(t *testing.T) {
	_, ts := newTestServer(t)
	snap := createSession(t, ts)
	base := ts.URL + "/sessions/" + snap.ID

	resp, err := http.Get(base)
	require.NoError(t, err)
	got := decodeSnapshot(t, resp)
	assert.Equal(t, snap.ID, got.ID)

	req, err := http.NewRequest(http.MethodDelete, base, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(base)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStopRefusesNewSessions(t *testing.T) {
	s, ts := newTestServer(t)
	snap := createSession(t, ts)

	require.NoError(t, s.Stop(context.Background()))

	// Existing sessions are torn down and new ones refused.
	resp, err := http.Get(ts.URL + "/sessions/" + snap.ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/sessions", map[string]interface{}{
		"split_id":       "split-1",
		"natural_width":  1200,
		"natural_height": 2400,
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestGeometryResize(t *testing.T) {
	_, ts := newTestServer(t)
	snap := createSession(t, ts)

	resp := postJSON(t, ts.URL+"/sessions/"+snap.ID+"/geometry", map[string]interface{}{
		"container_width": 1600,
		"max_height":      0,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeSnapshot(t, resp)

	assert.Equal(t, 1600.0, got.Geometry.DisplayWidth)
	assert.Equal(t, 3200.0, got.Geometry.DisplayHeight)
	require.NotEmpty(t, got.CutLines)
	// Lines scale with the display.
	assert.InDelta(t, snap.CutLines[0]*2, got.CutLines[0], 0.01)
}

func TestCutLineEndpoints(t *testing.T) {
	_, ts := newTestServer(t)
	snap := createSession(t, ts)
	base := ts.URL + "/sessions/" + snap.ID

	resp := postJSON(t, base+"/cutlines", map[string]interface{}{"y": 1234.0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeSnapshot(t, resp)
	assert.Len(t, got.CutLines, len(snap.CutLines)+1)
	assert.Contains(t, got.CutLines, 1234.0)

	req, err := http.NewRequest(http.MethodDelete, base+"/cutlines/0", nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	got = decodeSnapshot(t, delResp)
	assert.Len(t, got.CutLines, len(snap.CutLines))
}

func TestDragLifecycle(t *testing.T) {
	_, ts := newTestServer(t)
	snap := createSession(t, ts)
	require.NotEmpty(t, snap.CutLines)
	base := ts.URL + "/sessions/" + snap.ID

	resp := postJSON(t, base+"/cutlines/0/drag", map[string]interface{}{"y": 700.0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeSnapshot(t, resp)
	assert.True(t, got.Dragging)
	assert.Equal(t, 700.0, got.CutLines[0])

	// Mutations are rejected mid-drag.
	resp = postJSON(t, base+"/cutlines", map[string]interface{}{"y": 10.0})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = postJSON(t, base+"/cutlines/0/drag", map[string]interface{}{"y": 720.0, "done": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decodeSnapshot(t, resp)
	assert.False(t, got.Dragging)
	assert.Contains(t, got.CutLines, 720.0)

	// Released; the session accepts edits again.
	resp = postJSON(t, base+"/cutlines", map[string]interface{}{"y": 10.0})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSectionEndpoints(t *testing.T) {
	_, ts := newTestServer(t)
	snap := createSession(t, ts)
	base := ts.URL + "/sessions/" + snap.ID

	resp := postJSON(t, base+"/sections", map[string]interface{}{
		"bounds":      map[string]float64{"x": 0, "y": 80, "width": 100, "height": 20},
		"type":        "footer",
		"description": "page footer",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var section collab.Section
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&section))
	resp.Body.Close()
	assert.NotEmpty(t, section.ID)
	assert.Equal(t, collab.TypeFooter, section.Type)
	assert.Equal(t, 2, section.Index)

	resp = postJSON(t, base+"/sections/"+section.ID, map[string]interface{}{
		"type": "cta",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeSnapshot(t, resp)
	assert.Equal(t, collab.TypeCTA, got.Sections[2].Type)

	req, err := http.NewRequest(http.MethodDelete, base+"/sections/"+section.ID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	got = decodeSnapshot(t, delResp)
	assert.Len(t, got.Sections, 2)
}

func TestRedetectEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	snap := createSession(t, ts)

	resp := postJSON(t, ts.URL+"/sessions/"+snap.ID+"/redetect", map[string]interface{}{
		"image_ref": "homepage.png",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeSnapshot(t, resp)

	require.Len(t, got.Sections, 2)
	assert.Equal(t, "d1", got.Sections[0].ID)
	// Fresh suggestions re-derive the cut lines from scratch.
	require.Len(t, got.CutLines, 1)
	assert.InDelta(t, 0.70*got.Geometry.DisplayHeight, got.CutLines[0], 0.01)
}

func TestGenerateEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	snap := createSession(t, ts)

	resp := postJSON(t, ts.URL+"/sessions/"+snap.ID+"/generate", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var result editor.GenerateResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Len(t, result.Items, 2)
	assert.False(t, result.Regenerated)
	for i, item := range result.Items {
		assert.Contains(t, item.URL, fmt.Sprintf("#slot=%d", i))
	}
}

func TestCORSPreflight(t *testing.T) {
	_, ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/sessions", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
